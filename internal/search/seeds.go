package search

import (
	"context"

	"kabutune/internal/platform/youtube"
)

// YtdlpSeeds describes a seed video through yt-dlp when the search backend
// cannot.
type YtdlpSeeds struct {
	ytdlp *youtube.Ytdlp
}

func NewYtdlpSeeds(y *youtube.Ytdlp) *YtdlpSeeds {
	return &YtdlpSeeds{ytdlp: y}
}

func (s *YtdlpSeeds) Lookup(ctx context.Context, videoID string) (*Seed, error) {
	meta, err := s.ytdlp.ExtractMetadata(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return &Seed{Title: meta.Title, Channel: meta.Channel}, nil
}
