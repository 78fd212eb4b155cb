package search

import (
	"errors"
	"net/http"
)

var (
	ErrMissingQuery    = errors.New("query parameter is required")
	ErrMissingInput    = errors.New("video id or q is required")
	ErrUpstreamFailure = errors.New("upstream search failed")
)

// StatusOf maps a Service error to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrMissingQuery), errors.Is(err, ErrMissingInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MessageOf returns the client-facing message for err. fallback is used
// for unexpected failures so upstream details never leak.
func MessageOf(err error, fallback string) string {
	switch {
	case errors.Is(err, ErrMissingQuery):
		return "Query parameter is required"
	case errors.Is(err, ErrMissingInput):
		return "Video ID or q is required"
	case errors.Is(err, ErrUpstreamFailure):
		return "Upstream search failed"
	default:
		return fallback
	}
}
