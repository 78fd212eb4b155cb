package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type ServerConfig struct {
	Port           int
	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type HTTPConfig struct {
	proxy   string
	NoProxy []string
}

// GetProxy returns the configured proxy, falling back to the conventional
// proxy environment variables.
func (c HTTPConfig) GetProxy() string {
	if c.proxy != "" {
		return c.proxy
	}
	for _, name := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// NewHTTPConfig builds an HTTPConfig outside of Load, mostly for tests.
func NewHTTPConfig(proxy string, noProxy ...string) HTTPConfig {
	return HTTPConfig{proxy: proxy, NoProxy: noProxy}
}

type SearchConfig struct {
	Backend    string
	PipedBase  string
	Region     string
	MaxResults int
	RelatedMax int
	Timeout    time.Duration
}

type YouTubeConfig struct {
	APIKey             string
	CookiesFile        string
	CookiesFromBrowser string
	// Headers override or extend the request headers sent to YouTube.
	Headers map[string]string
}

type YtdlpConfig struct {
	Path        string
	AutoInstall bool
}

type StreamConfig struct {
	PipedDirect bool
}

type NewsConfig struct {
	Feeds    []string
	TTL      time.Duration
	MaxItems int
	PerFeed  int
	Timeout  time.Duration
}

type LoggingConfig struct {
	LogLevel    string
	WriteInFile bool
	FilePath    string
}

func (c LoggingConfig) Level() string {
	return strings.ToLower(c.LogLevel)
}

func (c LoggingConfig) IsDebug() bool {
	return c.Level() == "debug" || c.Level() == "trace"
}
