package network

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabutune/internal/config"
	"kabutune/internal/logger"
)

func TestWithProfile_ProfileHeadersWin(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	client := WithProfile(srv.Client(), AlternateProfile.With(map[string]string{"Cookie": "CONSENT=YES+1"}))

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "lib/1.0")
	req.Header.Set("Origin", "https://youtube.com")
	req.Header.Set("X-Youtube-Client-Name", "5")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, AlternateProfile.Headers.Get("User-Agent"), got.Get("User-Agent"))
	assert.Equal(t, "https://m.youtube.com", got.Get("Origin"))
	assert.Equal(t, "5", got.Get("X-Youtube-Client-Name"))
	assert.Equal(t, "en-GB,en;q=0.8", got.Get("Accept-Language"))
	assert.Equal(t, "https://m.youtube.com/", got.Get("Referer"))
	assert.Equal(t, "CONSENT=YES+1", got.Get("Cookie"))
}

func TestHeaderProfile_WithDoesNotMutate(t *testing.T) {
	p := DefaultProfile.With(map[string]string{"Accept-Language": "de-DE"})
	assert.Equal(t, "de-DE", p.Headers.Get("Accept-Language"))
	assert.Equal(t, "en-US,en;q=0.9", DefaultProfile.Headers.Get("Accept-Language"))
}

func TestMatchHost(t *testing.T) {
	assert.True(t, matchHost("api.example.com", "*.example.com"))
	assert.True(t, matchHost("localhost", "localhost"))
	assert.False(t, matchHost("example.org", "*.example.com"))
	assert.False(t, matchHost("apiXexample.com", "api*example.com.org"))
}

func TestSetupHTTPClient(t *testing.T) {
	log := logger.NewTestLogger()

	client, err := SetupHTTPClient(NewAPIClientConfig(config.NewHTTPConfig(""), 15*time.Second), log)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, client.Timeout)

	client, err = SetupHTTPClient(NewStreamingClientConfig(config.NewHTTPConfig("socks5://127.0.0.1:1080", "localhost")), log)
	require.NoError(t, err)
	assert.Zero(t, client.Timeout)
	assert.True(t, log.HasEntry("info", "Proxy configured"))

	_, err = SetupHTTPClient(NewAPIClientConfig(config.NewHTTPConfig("ftp://nope"), time.Second), log)
	assert.Error(t, err)
}
