package search

import (
	"context"
	"errors"
	"fmt"

	"kabutune/internal/platform"
	"kabutune/internal/platform/piped"
	"kabutune/internal/track"
)

// PipedBackend searches the Piped index, filtered to music songs.
type PipedBackend struct {
	client *piped.Client
}

func NewPipedBackend(client *piped.Client) *PipedBackend {
	return &PipedBackend{client: client}
}

func (b *PipedBackend) Name() string {
	return "piped"
}

func (b *PipedBackend) Search(ctx context.Context, query, pageToken string, limit int) (*Result, error) {
	var (
		page *piped.Page
		err  error
	)
	if pageToken != "" {
		page, err = b.client.NextPage(ctx, query, piped.FilterMusicSongs, pageToken)
	} else {
		page, err = b.client.Search(ctx, query, piped.FilterMusicSongs)
	}
	if err != nil {
		return nil, upstream(err)
	}

	tracks := make([]track.Track, 0, min(len(page.Items), limit))
	for _, item := range page.Items {
		if len(tracks) == limit {
			break
		}
		if t, ok := item.Track(); ok {
			tracks = append(tracks, t)
		}
	}
	return &Result{Tracks: tracks, NextPageToken: page.NextPage}, nil
}

func (b *PipedBackend) Lookup(ctx context.Context, videoID string) (*Seed, error) {
	s, err := b.client.Streams(ctx, videoID)
	if err != nil {
		return nil, upstream(err)
	}
	return &Seed{Title: s.Title, Channel: s.Uploader}, nil
}

// upstream tags non-2xx answers with ErrUpstreamFailure. Transport and
// decode errors pass through and end up as 500.
func upstream(err error) error {
	if errors.Is(err, platform.ErrUpstream) || errors.Is(err, platform.ErrRateLimited) {
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	return err
}
