package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kabutune/internal/logger"
	"kabutune/internal/track"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Search(ctx context.Context, query, pageToken string, limit int) (*Result, error) {
	args := m.Called(query, pageToken, limit)
	res, _ := args.Get(0).(*Result)
	return res, args.Error(1)
}

func (m *mockBackend) Lookup(ctx context.Context, videoID string) (*Seed, error) {
	args := m.Called(videoID)
	seed, _ := args.Get(0).(*Seed)
	return seed, args.Error(1)
}

type stubSeeds struct {
	seed  *Seed
	err   error
	calls int
}

func (s *stubSeeds) Lookup(context.Context, string) (*Seed, error) {
	s.calls++
	return s.seed, s.err
}

func tracks(ids ...string) []track.Track {
	out := make([]track.Track, len(ids))
	for i, id := range ids {
		out[i] = track.New(id, "Title "+id, "Channel", "", 100)
	}
	return out
}

func newService(b Backend, maxResults, relatedMax int) *Service {
	return NewService(b, Options{MaxResults: maxResults, RelatedMax: relatedMax}, logger.NewTestLogger())
}

func TestSearch_MissingQuery(t *testing.T) {
	b := &mockBackend{}
	_, err := newService(b, 30, 10).Search(context.Background(), "   ", "")

	assert.ErrorIs(t, err, ErrMissingQuery)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	b.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearch_TruncatesAndDropsEmptyIDs(t *testing.T) {
	raw := tracks("aaaaaaaaaaa", "", "bbbbbbbbbbb", "aaaaaaaaaaa", "ccccccccccc", "ddddddddddd")
	b := &mockBackend{}
	b.On("Search", "lofi", "tok", 3).Return(&Result{Tracks: raw, NextPageToken: "next"}, nil).Once()

	res, err := newService(b, 3, 10).Search(context.Background(), " lofi ", "tok")
	require.NoError(t, err)

	require.Len(t, res.Tracks, 3)
	for _, tr := range res.Tracks {
		assert.NotEmpty(t, tr.ID)
		assert.Equal(t, track.WatchURL(tr.ID), tr.URL)
	}
	assert.Equal(t, []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"}, ids(res.Tracks))
	assert.Equal(t, "next", res.NextPageToken)
}

func TestSearch_ErrorMapping(t *testing.T) {
	b := &mockBackend{}
	b.On("Search", "a", "", 30).Return(nil, fmt.Errorf("%w: status 503", ErrUpstreamFailure)).Once()
	b.On("Search", "b", "", 30).Return(nil, errors.New("invalid character '<'")).Once()
	s := newService(b, 30, 10)

	_, err := s.Search(context.Background(), "a", "")
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, "Upstream search failed", MessageOf(err, "Failed to search for tracks"))

	_, err = s.Search(context.Background(), "b", "")
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Equal(t, "Failed to search for tracks", MessageOf(err, "Failed to search for tracks"))
}

func TestRelated_MissingInput(t *testing.T) {
	_, err := newService(&mockBackend{}, 30, 10).Related(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
}

func TestRelated_NeverReturnsSeed(t *testing.T) {
	seed := "sssssssssss"
	b := &mockBackend{}
	b.On("Lookup", seed).Return(&Seed{Title: "Never Gonna Give You Up", Channel: "Rick"}, nil).Once()
	b.On("Search", "Never Gonna Give", "", 3).
		Return(&Result{Tracks: tracks(seed, "aaaaaaaaaaa", seed, "bbbbbbbbbbb", "ccccccccccc")}, nil).Twice()
	s := newService(b, 30, 2)

	for range 2 {
		res, err := s.Related(context.Background(), seed, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"aaaaaaaaaaa", "bbbbbbbbbbb"}, ids(res.Tracks))
		assert.NotContains(t, ids(res.Tracks), seed)
	}
	// The seed lookup is memoized.
	b.AssertNumberOfCalls(t, "Lookup", 1)
}

func TestRelated_WithQuery(t *testing.T) {
	seed := "sssssssssss"
	b := &mockBackend{}
	b.On("Search", "song artist", "", 11).Return(&Result{Tracks: tracks(seed, "aaaaaaaaaaa")}, nil).Once()

	res, err := newService(b, 30, 10).Related(context.Background(), seed, "song artist")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaaa"}, ids(res.Tracks))
	b.AssertNotCalled(t, "Lookup", mock.Anything)
}

func TestRelated_FallsBackToIDWithoutMetadata(t *testing.T) {
	seed := "sssssssssss"
	b := &mockBackend{}
	b.On("Lookup", seed).Return(nil, errors.New("lookup down"))
	b.On("Search", seed, "", 11).Return(&Result{Tracks: tracks("aaaaaaaaaaa")}, nil).Once()
	fallback := &stubSeeds{err: errors.New("yt-dlp missing")}

	s := newService(b, 30, 10).WithSeedFallback(fallback)
	res, err := s.Related(context.Background(), seed, "")
	require.NoError(t, err)
	assert.Len(t, res.Tracks, 1)
	assert.Equal(t, 1, fallback.calls)
}

func TestRelated_UsesSeedFallback(t *testing.T) {
	seed := "sssssssssss"
	b := &mockBackend{}
	b.On("Lookup", seed).Return(nil, errors.New("lookup down")).Once()
	b.On("Search", "Daft Punk Around", "", 11).Return(&Result{Tracks: tracks("aaaaaaaaaaa")}, nil).Once()

	s := newService(b, 30, 10).WithSeedFallback(&stubSeeds{seed: &Seed{Title: "Daft Punk Around The World"}})
	_, err := s.Related(context.Background(), seed, "")
	require.NoError(t, err)
	b.AssertExpectations(t)
}

func ids(ts []track.Track) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
