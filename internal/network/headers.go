package network

import (
	"net/http"
)

// HeaderProfile is a named set of browser-like request headers sent to
// YouTube. Switching profiles is the first response to a rate limit.
type HeaderProfile struct {
	Name    string
	Headers http.Header
}

var DefaultProfile = HeaderProfile{
	Name: "default",
	Headers: http.Header{
		"User-Agent":      {"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"},
		"Accept-Language": {"en-US,en;q=0.9"},
		"Referer":         {"https://www.youtube.com/"},
		"Origin":          {"https://www.youtube.com"},
	},
}

var AlternateProfile = HeaderProfile{
	Name: "alternate",
	Headers: http.Header{
		"User-Agent":      {"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"},
		"Accept-Language": {"en-GB,en;q=0.8"},
		"Referer":         {"https://m.youtube.com/"},
		"Origin":          {"https://m.youtube.com"},
	},
}

// With returns a copy of the profile with overrides applied on top.
func (p HeaderProfile) With(overrides map[string]string) HeaderProfile {
	h := p.Headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	for k, v := range overrides {
		h.Set(k, v)
	}
	return HeaderProfile{Name: p.Name, Headers: h}
}

type headerTransport struct {
	base    http.RoundTripper
	profile HeaderProfile
}

// RoundTrip sets every profile header on the request, replacing values a
// client library already put there. Headers outside the profile are left
// alone.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, vs := range t.profile.Headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// WithProfile returns a shallow copy of client whose requests carry the
// profile's headers. The underlying transport is shared.
func WithProfile(client *http.Client, profile HeaderProfile) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c := *client
	c.Transport = &headerTransport{base: base, profile: profile}
	return &c
}
