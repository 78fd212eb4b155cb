package platform

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrNotFound     = errors.New("no audio format available")
	ErrUpstream     = errors.New("upstream failure")
)

var rateLimitMarkers = []string{
	"too many requests",
	"rate limit",
	"rate-limit",
	"sign in to confirm you're not a bot",
	"sign in to confirm you’re not a bot",
}

var notFoundMarkers = []string{
	"no audio format",
	"no formats found",
	"requested format is not available",
	"video unavailable",
	"this video is not available",
	"can't find",
	"no video formats",
}

var (
	// rateLimitStatus matches 429 as a status code, never inside an id.
	rateLimitStatus = regexp.MustCompile(`(?:http error|status code|status)[: ]*429\b`)
	// videoPrefix is yt-dlp's "[youtube] <id>:" message prefix.
	videoPrefix = regexp.MustCompile(`\[[a-z:_]+\] [A-Za-z0-9_-]{11}:`)
)

// Classify wraps err with the matching sentinel unless it already carries
// one. Unrecognized failures are treated as ErrUpstream.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrUpstream) {
		return err
	}
	msg := strings.ToLower(videoPrefix.ReplaceAllString(err.Error(), ""))
	if rateLimitStatus.MatchString(msg) {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}
	for _, m := range notFoundMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// IsRateLimited reports whether err looks like an upstream rate limit.
func IsRateLimited(err error) bool {
	return errors.Is(Classify(err), ErrRateLimited)
}
