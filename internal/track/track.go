// Package track holds the normalized search result shared by every backend.
package track

import (
	"fmt"
	"strings"
)

const watchBase = "https://www.youtube.com/watch?v="

// Track is a search result. ID is the only stable identity; URL is always
// derived from it.
type Track struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Channel         string `json:"channel"`
	Thumbnail       string `json:"thumbnail"`
	Duration        string `json:"duration"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	URL             string `json:"url"`
	Views           int64  `json:"views,omitempty"`
}

// New builds a Track with its URL and display duration filled in.
func New(id, title, channel, thumbnail string, seconds int) Track {
	return Track{
		ID:              id,
		Title:           title,
		Channel:         channel,
		Thumbnail:       thumbnail,
		Duration:        FormatDuration(seconds),
		DurationSeconds: max(seconds, 0),
		URL:             WatchURL(id),
	}
}

func WatchURL(id string) string {
	return watchBase + id
}

// ThumbnailURL is the predictable medium thumbnail for a video id.
func ThumbnailURL(id string) string {
	return "https://i.ytimg.com/vi/" + id + "/mqdefault.jpg"
}

// FormatDuration renders seconds as M:SS, or H:MM:SS from one hour on.
// Negative or zero input renders as 0:00.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ParseISODuration converts an ISO-8601 duration such as PT1H2M3S into
// seconds. Unknown designators are ignored.
func ParseISODuration(v string) int {
	v = strings.TrimPrefix(strings.ToUpper(v), "P")
	total, n := 0, 0
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			n = n*10 + int(r-'0')
		case r == 'D':
			total += n * 86400
			n = 0
		case r == 'H':
			total += n * 3600
			n = 0
		case r == 'M':
			total += n * 60
			n = 0
		case r == 'S':
			total += n
			n = 0
		default:
			n = 0
		}
	}
	return total
}

// FirstWords returns up to n whitespace-separated words of s.
func FirstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
