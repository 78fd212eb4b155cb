package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabutune/internal/config"
	"kabutune/internal/logger"
	"kabutune/internal/network"
	"kabutune/internal/news"
	"kabutune/internal/platform"
	"kabutune/internal/search"
	"kabutune/internal/stream"
	"kabutune/internal/track"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testVideoID = "dQw4w9WgXcQ"

type stubBackend struct {
	tracks    []track.Track
	nextPage  string
	err       error
	lastQuery atomic.Value
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Search(_ context.Context, query, _ string, _ int) (*search.Result, error) {
	b.lastQuery.Store(query)
	if b.err != nil {
		return nil, b.err
	}
	return &search.Result{Tracks: b.tracks, NextPageToken: b.nextPage}, nil
}

func (b *stubBackend) Lookup(context.Context, string) (*search.Seed, error) {
	return &search.Seed{Title: "Never Gonna Give You Up", Channel: "Rick Astley"}, nil
}

type stubSource struct {
	calls atomic.Int32
	open  func() (*platform.Audio, error)
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Open(context.Context, string, network.HeaderProfile) (*platform.Audio, error) {
	s.calls.Add(1)
	return s.open()
}

func audioOf(body string) func() (*platform.Audio, error) {
	return func() (*platform.Audio, error) {
		return &platform.Audio{
			Body:        io.NopCloser(strings.NewReader(body)),
			ContentType: "audio/webm",
			Ext:         "webm",
			Size:        int64(len(body)),
		}, nil
	}
}

type stubNews struct {
	items []news.Item
	err   error
	feeds []string
}

func (n *stubNews) Items(_ context.Context, feeds []string) ([]news.Item, error) {
	n.feeds = feeds
	return n.items, n.err
}

type fixture struct {
	backend *stubBackend
	source  *stubSource
	news    *stubNews
	log     *logger.TestLogger
	router  *gin.Engine
}

func newFixture(t *testing.T, serverCfg config.ServerConfig) *fixture {
	t.Helper()
	f := &fixture{
		backend: &stubBackend{},
		source:  &stubSource{open: audioOf("audio-bytes")},
		news:    &stubNews{},
		log:     logger.NewTestLogger(),
	}
	svc := search.NewService(f.backend, search.Options{MaxResults: 3, RelatedMax: 2}, f.log)
	proxy := stream.New(f.source, nil, nil, f.log)
	api := NewAPI(svc, proxy, f.news, []string{"stub"}, f.log)
	f.router = SetupRouter(api, serverCfg, f.log)
	return f
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:5000"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func defaultServerConfig() config.ServerConfig {
	return config.ServerConfig{CORSOrigin: "*", RateLimitRPS: 100, RateLimitBurst: 100}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, defaultServerConfig())

	w := f.get("/api/health")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.True(t, resp.OK)
	assert.Equal(t, "stub", resp.Backend)
	assert.Equal(t, []string{"stub"}, resp.Sources)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t, defaultServerConfig())
	f.backend.tracks = []track.Track{
		track.New("aaaaaaaaaaa", "One", "Ch", "", 61),
		{ID: "", Title: "no id"},
		track.New("bbbbbbbbbbb", "Two", "Ch", "", 3600),
		track.New("aaaaaaaaaaa", "One again", "Ch", "", 61),
		track.New("ccccccccccc", "Three", "Ch", "", 5),
		track.New("ddddddddddd", "Four", "Ch", "", 5),
	}
	f.backend.nextPage = "page-2"

	w := f.get("/api/search?q=lofi")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[TracksResponse](t, w)
	require.Len(t, resp.Tracks, 3)
	assert.Equal(t, "aaaaaaaaaaa", resp.Tracks[0].ID)
	assert.Equal(t, "1:01", resp.Tracks[0].Duration)
	assert.Equal(t, "1:00:00", resp.Tracks[1].Duration)
	assert.Equal(t, "https://www.youtube.com/watch?v=aaaaaaaaaaa", resp.Tracks[0].URL)
	assert.Equal(t, "page-2", resp.NextPageToken)
}

func TestSearchEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		err     error
		status  int
		message string
	}{
		{"missing query", "/api/search", nil, http.StatusBadRequest, "Query parameter is required"},
		{"blank query", "/api/search?q=%20%20", nil, http.StatusBadRequest, "Query parameter is required"},
		{"upstream", "/api/search?q=x", search.ErrUpstreamFailure, http.StatusBadGateway, "Upstream search failed"},
		{"generic", "/api/search?q=x", errors.New("decode"), http.StatusInternalServerError, "Search failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultServerConfig())
			f.backend.err = tt.err

			w := f.get(tt.path)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decode[TracksResponse](t, w).Error)
		})
	}
}

func TestRelatedEndpoint_ExcludesSeed(t *testing.T) {
	f := newFixture(t, defaultServerConfig())
	f.backend.tracks = []track.Track{
		track.New(testVideoID, "Seed", "Ch", "", 10),
		track.New("bbbbbbbbbbb", "Two", "Ch", "", 10),
	}

	w := f.get("/api/related/" + testVideoID)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[TracksResponse](t, w)
	require.Len(t, resp.Tracks, 1)
	assert.Equal(t, "bbbbbbbbbbb", resp.Tracks[0].ID)
	assert.Equal(t, "Never Gonna Give", f.backend.lastQuery.Load())
}

func TestRelatedEndpoint_QueryOnly(t *testing.T) {
	f := newFixture(t, defaultServerConfig())
	f.backend.tracks = []track.Track{track.New("bbbbbbbbbbb", "Two", "Ch", "", 10)}

	w := f.get("/api/related?q=city+pop")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "city pop", f.backend.lastQuery.Load())
}

func TestRelatedEndpoint_MissingInput(t *testing.T) {
	f := newFixture(t, defaultServerConfig())

	w := f.get("/api/related")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Video ID or q is required", decode[TracksResponse](t, w).Error)
}

func TestStreamEndpoint(t *testing.T) {
	f := newFixture(t, defaultServerConfig())

	w := f.get("/api/stream/" + testVideoID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio-bytes", w.Body.String())
	assert.Equal(t, "audio/webm", w.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
}

func TestStreamEndpoint_InvalidID(t *testing.T) {
	f := newFixture(t, defaultServerConfig())

	for _, id := range []string{"short", "has%20space", "bad$chars!!", "waytoolongvideoid"} {
		w := f.get("/api/stream/" + id)
		assert.Equal(t, http.StatusBadRequest, w.Code, id)
		assert.Equal(t, "Invalid video ID", decode[ErrorResponse](t, w).Error)
	}
	assert.Zero(t, f.source.calls.Load())
}

func TestStreamEndpoint_Exhausted(t *testing.T) {
	f := newFixture(t, defaultServerConfig())
	f.source.open = func() (*platform.Audio, error) {
		return nil, platform.Classify(errors.New("HTTP Error 429: Too Many Requests"))
	}

	w := f.get("/api/stream/" + testVideoID)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Upstream rate limit reached, try again later", decode[ErrorResponse](t, w).Error)
	assert.Equal(t, int32(2), f.source.calls.Load())
}

type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("connection reset by peer")
	}
	r.sent = true
	return copy(p, "partial"), nil
}

func TestStreamEndpoint_FailureAfterHeaders(t *testing.T) {
	f := newFixture(t, defaultServerConfig())
	f.source.open = func() (*platform.Audio, error) {
		return &platform.Audio{Body: io.NopCloser(&failingReader{}), ContentType: "audio/webm"}, nil
	}

	w := f.get("/api/stream/" + testVideoID)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", w.Body.String())
	assert.NotContains(t, w.Body.String(), "error")
}

func TestDownloadEndpoint(t *testing.T) {
	f := newFixture(t, defaultServerConfig())

	w := f.get("/api/download/" + testVideoID + "?title=My%20Song%3A%20Live!")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="My Song Live.webm"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}

func TestDownloadEndpoint_InvalidFormat(t *testing.T) {
	f := newFixture(t, defaultServerConfig())

	w := f.get("/api/download/" + testVideoID + "?format=flac")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.source.calls.Load())
}

func TestStreamEndpoint_ClientRateLimit(t *testing.T) {
	f := newFixture(t, config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, f.get("/api/stream/"+testVideoID).Code)

	w := f.get("/api/stream/" + testVideoID)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, int32(1), f.source.calls.Load())
	assert.True(t, f.log.HasEntry("warn", "Client rate limit exceeded"))

	// search is not limited
	assert.NotEqual(t, http.StatusTooManyRequests, f.get("/api/search?q=x").Code)
}

func TestNewsEndpoint(t *testing.T) {
	f := newFixture(t, defaultServerConfig())
	f.news.items = []news.Item{{Title: "Headline", Link: "https://example.com/1"}}

	w := f.get("/api/news?feeds=https://a.example/rss,%20https://b.example/rss")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[NewsResponse](t, w)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Headline", resp.Items[0].Title)
	assert.Equal(t, []string{"https://a.example/rss", "https://b.example/rss"}, f.news.feeds)
}

func TestNewsEndpoint_Failure(t *testing.T) {
	f := newFixture(t, defaultServerConfig())
	f.news.err = errors.New("snapshot unavailable")

	w := f.get("/api/news")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[NewsResponse](t, w)
	assert.Equal(t, "Failed to fetch news", resp.Error)
	assert.NotNil(t, resp.Items)
	assert.Nil(t, f.news.feeds)
}

type brokenFeeds struct{}

func (brokenFeeds) Fetch(context.Context, string) (*gofeed.Feed, error) {
	return nil, errors.New("xml syntax error")
}

func TestNewsEndpoint_AllFeedsFail(t *testing.T) {
	log := logger.NewTestLogger()
	agg := news.NewAggregator(brokenFeeds{}, news.Options{Feeds: []string{"https://a.example/rss"}}, log)
	api := NewAPI(nil, nil, agg, nil, log)
	router := SetupRouter(api, defaultServerConfig(), log)

	req := httptest.NewRequest(http.MethodGet, "/api/news", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
	assert.True(t, log.HasEntry("warn", "All news feeds failed"))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, config.ServerConfig{CORSOrigin: "https://app.example", RateLimitRPS: 1, RateLimitBurst: 1})

	req := httptest.NewRequest(http.MethodOptions, "/api/stream/"+testVideoID, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagation(t *testing.T) {
	f := newFixture(t, defaultServerConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
	assert.True(t, f.log.HasEntry("info", "Request served"))
}
