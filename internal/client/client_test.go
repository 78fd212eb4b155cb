package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabutune/internal/player"
)

var _ player.RelatedFetcher = (*Client)(nil)

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search", r.URL.Path)
		assert.Equal(t, "lofi beats", r.URL.Query().Get("q"))
		assert.Equal(t, "p2", r.URL.Query().Get("pageToken"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tracks":[{"id":"dQw4w9WgXcQ","title":"Song","channel":"Ch","duration":"3:33"}],"nextPageToken":"p3"}`))
	}))
	defer srv.Close()

	tracks, next, err := New(srv.URL+"/", srv.Client()).Search(context.Background(), "lofi beats", "p2")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "dQw4w9WgXcQ", tracks[0].ID)
	assert.Equal(t, "3:33", tracks[0].Duration)
	assert.Equal(t, "p3", next)
}

func TestClient_Related(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/related/dQw4w9WgXcQ", r.URL.Path)
		assert.Equal(t, "Song Ch", r.URL.Query().Get("q"))
		w.Write([]byte(`{"tracks":[{"id":"aaaaaaaaaaa"},{"id":"bbbbbbbbbbb"}]}`))
	}))
	defer srv.Close()

	tracks, err := New(srv.URL, nil).Related(context.Background(), "dQw4w9WgXcQ", "Song Ch")
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"Upstream search failed"}`))
	}))
	defer srv.Close()

	_, _, err := New(srv.URL, nil).Search(context.Background(), "x", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, "Upstream search failed", se.Message)
}

func TestClient_URLs(t *testing.T) {
	c := New("http://localhost:4000/", nil)
	assert.Equal(t, "http://localhost:4000/api/stream/dQw4w9WgXcQ", c.StreamURL("dQw4w9WgXcQ"))
	assert.Equal(t, "http://localhost:4000/api/download/dQw4w9WgXcQ?format=mp3&title=My+Song",
		c.DownloadURL("dQw4w9WgXcQ", "My Song", "mp3"))
	assert.Equal(t, "http://localhost:4000/api/download/dQw4w9WgXcQ", c.DownloadURL("dQw4w9WgXcQ", "", ""))
}
