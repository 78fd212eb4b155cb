// Package config loads service settings from defaults, an optional TOML file
// and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

const envPrefix = "KABUTUNE_"

const (
	SERVER_PORT             = "server.port"
	SERVER_CORS_ORIGIN      = "server.cors_origin"
	SERVER_RATE_LIMIT_RPS   = "server.rate_limit_rps"
	SERVER_RATE_LIMIT_BURST = "server.rate_limit_burst"
	HTTP_PROXY              = "http.proxy"
	HTTP_NO_PROXY           = "http.no_proxy"
	SEARCH_BACKEND          = "search.backend"
	SEARCH_PIPED_BASE       = "search.piped_base"
	SEARCH_REGION           = "search.region"
	SEARCH_MAX_RESULTS      = "search.max_results"
	SEARCH_RELATED_MAX      = "search.related_max"
	SEARCH_TIMEOUT          = "search.timeout"
	YOUTUBE_API_KEY         = "youtube.api_key"
	YOUTUBE_COOKIES_FILE    = "youtube.cookies_file"
	YOUTUBE_COOKIES_BROWSER = "youtube.cookies_browser"
	YOUTUBE_HEADERS         = "youtube.headers"
	YTDLP_PATH              = "ytdlp.path"
	YTDLP_AUTO_INSTALL      = "ytdlp.auto_install"
	STREAM_PIPED_DIRECT     = "stream.piped_direct"
	NEWS_FEEDS              = "news.feeds"
	NEWS_TTL                = "news.ttl"
	NEWS_MAX_ITEMS          = "news.max_items"
	NEWS_PER_FEED           = "news.per_feed"
	NEWS_TIMEOUT            = "news.timeout"
	LOGGING_LEVEL           = "logging.level"
	LOGGING_WRITE_IN_FILE   = "logging.write_in_file"
	LOGGING_FILE_PATH       = "logging.file_path"
)

// DefaultFeeds are aggregated by /api/news when no feeds are requested.
var DefaultFeeds = []string{
	"https://www.theverge.com/rss/index.xml",
	"https://www.engadget.com/rss.xml",
	"https://pitchfork.com/rss/reviews/albums/",
	"https://www.rollingstone.com/music/music-news/feed/",
}

// legacyEnv maps the variable names used by earlier deployments to keys.
var legacyEnv = map[string]string{
	"PORT":               SERVER_PORT,
	"PIPED_BASE":         SEARCH_PIPED_BASE,
	"YT_API_KEY":         YOUTUBE_API_KEY,
	"YT_COOKIES_FILE":    YOUTUBE_COOKIES_FILE,
	"YT_COOKIES_BROWSER": YOUTUBE_COOKIES_BROWSER,
}

type Config struct {
	k *koanf.Koanf
}

func defaults() map[string]any {
	return map[string]any{
		SERVER_PORT:             4000,
		SERVER_CORS_ORIGIN:      "*",
		SERVER_RATE_LIMIT_RPS:   5.0,
		SERVER_RATE_LIMIT_BURST: 20,
		SEARCH_BACKEND:          "piped",
		SEARCH_PIPED_BASE:       "https://pipedapi.kavin.rocks",
		SEARCH_REGION:           "US",
		SEARCH_MAX_RESULTS:      30,
		SEARCH_RELATED_MAX:      10,
		SEARCH_TIMEOUT:          15 * time.Second,
		YTDLP_PATH:              "",
		YTDLP_AUTO_INSTALL:      false,
		STREAM_PIPED_DIRECT:     false,
		NEWS_FEEDS:              DefaultFeeds,
		NEWS_TTL:                5 * time.Minute,
		NEWS_MAX_ITEMS:          40,
		NEWS_PER_FEED:           10,
		NEWS_TIMEOUT:            20 * time.Second,
		LOGGING_LEVEL:           "info",
		LOGGING_WRITE_IN_FILE:   false,
		LOGGING_FILE_PATH:       "kabutune.log",
	}
}

// Load reads the configuration. An explicit path must exist; otherwise the
// first file found in the default search paths is used, if any.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", path, err)
		}
	} else {
		for _, p := range searchPaths() {
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config %s: %w", p, err)
			}
			break
		}
	}

	legacy := map[string]any{}
	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" {
			legacy[key] = v
		}
	}
	if len(legacy) > 0 {
		if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
			return nil, fmt.Errorf("load legacy env: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	return &Config{k: k}, nil
}

// Override sets key on top of every other source. Command line flags use it.
func (c *Config) Override(key string, value any) error {
	if err := c.k.Set(key, value); err != nil {
		return fmt.Errorf("override %s: %w", key, err)
	}
	return nil
}

// envKey maps KABUTUNE_SEARCH_MAX_RESULTS to search.max_results: the first
// underscore separates the section, the rest belong to the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func searchPaths() []string {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, _ := os.UserHomeDir()
		xdg = filepath.Join(home, ".config")
	}
	return []string{
		"kabutune.toml",
		"config.toml",
		filepath.Join(xdg, "kabutune", "config.toml"),
	}
}

func (c *Config) Server() ServerConfig {
	return ServerConfig{
		Port:           c.k.Int(SERVER_PORT),
		CORSOrigin:     c.k.String(SERVER_CORS_ORIGIN),
		RateLimitRPS:   c.k.Float64(SERVER_RATE_LIMIT_RPS),
		RateLimitBurst: c.k.Int(SERVER_RATE_LIMIT_BURST),
	}
}

func (c *Config) HTTP() HTTPConfig {
	return HTTPConfig{
		proxy:   c.k.String(HTTP_PROXY),
		NoProxy: c.list(HTTP_NO_PROXY),
	}
}

func (c *Config) Search() SearchConfig {
	return SearchConfig{
		Backend:    strings.ToLower(c.k.String(SEARCH_BACKEND)),
		PipedBase:  strings.TrimSuffix(c.k.String(SEARCH_PIPED_BASE), "/"),
		Region:     c.k.String(SEARCH_REGION),
		MaxResults: c.k.Int(SEARCH_MAX_RESULTS),
		RelatedMax: c.k.Int(SEARCH_RELATED_MAX),
		Timeout:    c.k.Duration(SEARCH_TIMEOUT),
	}
}

func (c *Config) YouTube() YouTubeConfig {
	return YouTubeConfig{
		APIKey:             c.k.String(YOUTUBE_API_KEY),
		CookiesFile:        c.k.String(YOUTUBE_COOKIES_FILE),
		CookiesFromBrowser: c.k.String(YOUTUBE_COOKIES_BROWSER),
		Headers:            c.k.StringMap(YOUTUBE_HEADERS),
	}
}

func (c *Config) Ytdlp() YtdlpConfig {
	return YtdlpConfig{
		Path:        c.k.String(YTDLP_PATH),
		AutoInstall: c.k.Bool(YTDLP_AUTO_INSTALL),
	}
}

func (c *Config) Stream() StreamConfig {
	return StreamConfig{PipedDirect: c.k.Bool(STREAM_PIPED_DIRECT)}
}

func (c *Config) News() NewsConfig {
	return NewsConfig{
		Feeds:    c.list(NEWS_FEEDS),
		TTL:      c.k.Duration(NEWS_TTL),
		MaxItems: c.k.Int(NEWS_MAX_ITEMS),
		PerFeed:  c.k.Int(NEWS_PER_FEED),
		Timeout:  c.k.Duration(NEWS_TIMEOUT),
	}
}

func (c *Config) Log() LoggingConfig {
	return LoggingConfig{
		LogLevel:    c.k.String(LOGGING_LEVEL),
		WriteInFile: c.k.Bool(LOGGING_WRITE_IN_FILE),
		FilePath:    c.k.String(LOGGING_FILE_PATH),
	}
}

// list reads a string slice that may also arrive as one comma-separated
// value from the environment.
func (c *Config) list(key string) []string {
	return SplitList(c.k.Strings(key)...)
}

// SplitList flattens comma-separated entries, trimming blanks.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
