// Package youtube implements the YouTube audio providers: the kkdai
// extractor, the yt-dlp direct URL resolver and the yt-dlp pipe extractor.
package youtube

import (
	"fmt"
	"net/url"
	"strings"

	"kabutune/internal/config"
	"kabutune/internal/platform"
	"kabutune/internal/track"
)

// Options configure how providers authenticate and reach YouTube.
type Options struct {
	// CookiesFromBrowser extracts cookies from browser (e.g., "firefox", "chrome", "safari")
	CookiesFromBrowser string
	// CookiesFile path to cookies.txt file (alternative to browser cookies)
	CookiesFile string
	// Executable overrides the yt-dlp binary location.
	Executable string
	Proxy      string
	// Headers are applied on top of every header profile.
	Headers map[string]string
}

func OptionsFromConfig(cfg *config.Config) Options {
	yt := cfg.YouTube()
	return Options{
		CookiesFromBrowser: yt.CookiesFromBrowser,
		CookiesFile:        yt.CookiesFile,
		Executable:         cfg.Ytdlp().Path,
		Proxy:              cfg.HTTP().GetProxy(),
		Headers:            yt.Headers,
	}
}

// cookieArgs returns yt-dlp arguments for cookie authentication.
func (o Options) cookieArgs() []string {
	if o.CookiesFile != "" {
		return []string{"--cookies", o.CookiesFile}
	}
	if o.CookiesFromBrowser != "" {
		return []string{"--cookies-from-browser", o.CookiesFromBrowser}
	}
	return nil
}

// IsVideoID reports whether value has the shape of a YouTube video id.
func IsVideoID(value string) bool {
	if len(value) != 11 {
		return false
	}
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

// ValidateID returns platform.ErrInvalidInput for malformed ids.
func ValidateID(id string) error {
	if !IsVideoID(id) {
		return fmt.Errorf("%w: invalid video id %q", platform.ErrInvalidInput, id)
	}
	return nil
}

// NormalizeURL turns a bare id into a watch URL and leaves YouTube URLs as is.
func NormalizeURL(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if strings.Contains(trimmed, "youtube.com") || strings.Contains(trimmed, "youtu.be") {
		return trimmed
	}
	if IsVideoID(trimmed) {
		return track.WatchURL(trimmed)
	}
	return trimmed
}

// ExtractID pulls the video id out of a bare id, a watch URL, a youtu.be
// link or a relative "/watch?v=" path. It returns "" if none is found.
func ExtractID(input string) string {
	trimmed := strings.TrimSpace(input)
	if IsVideoID(trimmed) {
		return trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); IsVideoID(v) {
		return v
	}
	if strings.Contains(u.Host, "youtu.be") || strings.HasPrefix(u.Path, "/shorts/") || strings.HasPrefix(u.Path, "/embed/") {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if last := parts[len(parts)-1]; IsVideoID(last) {
			return last
		}
	}
	return ""
}
