// Package server exposes the search, related, stream, download and news
// proxies over HTTP.
package server

import (
	"kabutune/internal/news"
	"kabutune/internal/track"
)

// ErrorResponse is the body of every JSON failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TracksResponse is the response for search and related endpoints.
type TracksResponse struct {
	Tracks        []track.Track `json:"tracks"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// NewsResponse is the response for the news endpoint.
type NewsResponse struct {
	Items []news.Item `json:"items"`
	Error string      `json:"error,omitempty"`
}

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	OK      bool     `json:"ok"`
	Backend string   `json:"backend,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// DownloadQuery binds the optional download parameters.
type DownloadQuery struct {
	Title  string `form:"title" binding:"max=200"`
	Format string `form:"format" binding:"omitempty,oneof=mp3 ogg aac"`
}
