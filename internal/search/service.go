// Package search maps free-text queries and seed videos to normalized
// tracks using a pluggable search backend.
package search

import (
	"context"
	"strings"
	"time"

	"kabutune/internal/cache"
	"kabutune/internal/logger"
	"kabutune/internal/track"
)

const (
	seedTTL        = 30 * time.Minute
	seedQueryWords = 3
)

// Result is the JSON body of /api/search and /api/related.
type Result struct {
	Tracks        []track.Track `json:"tracks"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

// Seed is what a related lookup needs to know about the seed video.
type Seed struct {
	Title   string
	Channel string
}

// Backend is an external search index.
type Backend interface {
	Name() string
	// Search returns up to limit raw results. pageToken is opaque.
	Search(ctx context.Context, query, pageToken string, limit int) (*Result, error)
	Lookup(ctx context.Context, videoID string) (*Seed, error)
}

// SeedLookup is a secondary source of seed metadata, consulted when the
// backend cannot describe a video.
type SeedLookup interface {
	Lookup(ctx context.Context, videoID string) (*Seed, error)
}

type Options struct {
	MaxResults int
	RelatedMax int
}

type Service struct {
	backend  Backend
	fallback SeedLookup
	seeds    *cache.Cache[Seed]
	opts     Options
	log      logger.Logger
}

func NewService(backend Backend, opts Options, log logger.Logger) *Service {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 30
	}
	if opts.RelatedMax <= 0 {
		opts.RelatedMax = 10
	}
	return &Service{
		backend: backend,
		seeds:   cache.New[Seed](),
		opts:    opts,
		log:     log.WithFields(logger.Fields{"component": "search", "backend": backend.Name()}),
	}
}

// WithSeedFallback sets the lookup used when the backend has no metadata.
func (s *Service) WithSeedFallback(l SeedLookup) *Service {
	s.fallback = l
	return s
}

func (s *Service) Backend() string {
	return s.backend.Name()
}

// Search returns at most MaxResults tracks for query, none with an empty id.
func (s *Service) Search(ctx context.Context, query, pageToken string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingQuery
	}
	res, err := s.backend.Search(ctx, query, pageToken, s.opts.MaxResults)
	if err != nil {
		s.log.WithError(err).WithField("query", query).Error("Search failed")
		return nil, err
	}
	return &Result{
		Tracks:        normalize(res.Tracks, "", s.opts.MaxResults),
		NextPageToken: res.NextPageToken,
	}, nil
}

// Related returns tracks similar to videoID, or to q when given. The seed
// id itself is never part of the result.
func (s *Service) Related(ctx context.Context, videoID, q string) (*Result, error) {
	videoID, q = strings.TrimSpace(videoID), strings.TrimSpace(q)
	if videoID == "" && q == "" {
		return nil, ErrMissingInput
	}

	query := q
	if query == "" {
		query = s.seedQuery(ctx, videoID)
	}

	res, err := s.backend.Search(ctx, query, "", s.opts.RelatedMax+1)
	if err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"video_id": videoID, "query": query}).Error("Related search failed")
		return nil, err
	}
	return &Result{Tracks: normalize(res.Tracks, videoID, s.opts.RelatedMax)}, nil
}

// seedQuery derives a search query from the seed's title. Without metadata
// the id itself is the query.
func (s *Service) seedQuery(ctx context.Context, videoID string) string {
	seed, ok := s.seeds.Get(videoID)
	if !ok {
		seed, ok = s.lookupSeed(ctx, videoID)
		if ok {
			s.seeds.Set(videoID, seed, seedTTL)
		}
	}
	if words := track.FirstWords(seed.Title, seedQueryWords); words != "" {
		return words
	}
	return videoID
}

func (s *Service) lookupSeed(ctx context.Context, videoID string) (Seed, bool) {
	seed, err := s.backend.Lookup(ctx, videoID)
	if err == nil && seed != nil && seed.Title != "" {
		return *seed, true
	}
	if err != nil {
		s.log.WithError(err).WithField("video_id", videoID).Debug("Seed lookup failed")
	}
	if s.fallback == nil {
		return Seed{}, false
	}
	seed, err = s.fallback.Lookup(ctx, videoID)
	if err != nil || seed == nil || seed.Title == "" {
		if err != nil {
			s.log.WithError(err).WithField("video_id", videoID).Debug("Fallback seed lookup failed")
		}
		return Seed{}, false
	}
	return *seed, true
}

// normalize drops empty and duplicate ids and the excluded id, then
// truncates to limit.
func normalize(tracks []track.Track, exclude string, limit int) []track.Track {
	out := make([]track.Track, 0, min(len(tracks), limit))
	seen := make(map[string]struct{}, len(tracks))
	for _, t := range tracks {
		if len(out) == limit {
			break
		}
		if t.ID == "" || t.ID == exclude {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		t.URL = track.WatchURL(t.ID)
		out = append(out, t)
	}
	return out
}
