package search

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"kabutune/internal/logger"
	"kabutune/internal/track"
)

const musicCategoryID = "10"

// maxDataAPIResults is the per-page ceiling of search.list.
const maxDataAPIResults = 50

// YouTubeBackend searches through the YouTube Data API v3.
type YouTubeBackend struct {
	svc    *ytapi.Service
	region string
	log    logger.Logger
}

// NewYouTubeBackend authenticates with apiKey. endpoint overrides the API
// base URL and is empty in production.
func NewYouTubeBackend(ctx context.Context, apiKey, region, endpoint string, httpClient *http.Client, log logger.Logger) (*YouTubeBackend, error) {
	if apiKey == "" {
		return nil, errors.New("youtube data api requires an api key")
	}
	base := http.DefaultTransport
	if httpClient != nil && httpClient.Transport != nil {
		base = httpClient.Transport
	}
	client := &http.Client{Transport: &transport.APIKey{Key: apiKey, Transport: base}}
	if httpClient != nil {
		client.Timeout = httpClient.Timeout
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &YouTubeBackend{svc: svc, region: region, log: log.WithField("backend", "youtube")}, nil
}

func (b *YouTubeBackend) Name() string {
	return "youtube"
}

func (b *YouTubeBackend) Search(ctx context.Context, query, pageToken string, limit int) (*Result, error) {
	call := b.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		VideoCategoryId(musicCategoryID).
		MaxResults(int64(min(max(limit, 1), maxDataAPIResults))).
		Context(ctx)
	if b.region != "" {
		call = call.RegionCode(b.region)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, apiError(err)
	}

	tracks := make([]track.Track, 0, len(resp.Items))
	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		id := item.Id.VideoId
		thumb := bestThumbnail(item.Snippet.Thumbnails)
		if thumb == "" {
			thumb = track.ThumbnailURL(id)
		}
		tracks = append(tracks, track.New(
			id,
			html.UnescapeString(item.Snippet.Title),
			html.UnescapeString(item.Snippet.ChannelTitle),
			thumb,
			0,
		))
		ids = append(ids, id)
	}

	b.enrich(ctx, tracks, ids)
	return &Result{Tracks: tracks, NextPageToken: resp.NextPageToken}, nil
}

// enrich fills durations and view counts. search.list returns neither, and
// a failure here only leaves them empty.
func (b *YouTubeBackend) enrich(ctx context.Context, tracks []track.Track, ids []string) {
	if len(ids) == 0 {
		return
	}
	resp, err := b.svc.Videos.List([]string{"contentDetails", "statistics"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		b.log.WithError(err).Warn("Failed to fetch video details")
		return
	}
	byID := make(map[string]*ytapi.Video, len(resp.Items))
	for _, v := range resp.Items {
		byID[v.Id] = v
	}
	for i := range tracks {
		v, ok := byID[tracks[i].ID]
		if !ok {
			continue
		}
		if v.ContentDetails != nil {
			secs := track.ParseISODuration(v.ContentDetails.Duration)
			tracks[i].Duration = track.FormatDuration(secs)
			tracks[i].DurationSeconds = secs
		}
		if v.Statistics != nil {
			tracks[i].Views = int64(v.Statistics.ViewCount)
		}
	}
}

func (b *YouTubeBackend) Lookup(ctx context.Context, videoID string) (*Seed, error) {
	resp, err := b.svc.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return nil, apiError(err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return nil, fmt.Errorf("video %s not found", videoID)
	}
	sn := resp.Items[0].Snippet
	return &Seed{
		Title:   html.UnescapeString(sn.Title),
		Channel: html.UnescapeString(sn.ChannelTitle),
	}, nil
}

func bestThumbnail(t *ytapi.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*ytapi.Thumbnail{t.Medium, t.High, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

// apiError tags HTTP-level API failures with ErrUpstreamFailure.
func apiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("%w: youtube data api returned %d: %w", ErrUpstreamFailure, gerr.Code, err)
	}
	return err
}
