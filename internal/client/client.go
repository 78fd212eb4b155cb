// Package client talks to a running kabutune server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"kabutune/internal/track"
)

// ErrServer is wrapped by every non-2xx answer.
var ErrServer = errors.New("server error")

// StatusError carries the status and the server's error message.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrServer
}

type tracksBody struct {
	Tracks        []track.Track `json:"tracks"`
	NextPageToken string        `json:"nextPageToken"`
	Error         string        `json:"error"`
}

type Client struct {
	base string
	http *http.Client
}

// New returns a client for the server at base, e.g. http://localhost:4000.
func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient}
}

// Search returns one page of results and the token of the next page.
func (c *Client) Search(ctx context.Context, query, pageToken string) ([]track.Track, string, error) {
	params := url.Values{"q": {query}}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	var body tracksBody
	if err := c.getJSON(ctx, "/api/search", params, &body); err != nil {
		return nil, "", err
	}
	return body.Tracks, body.NextPageToken, nil
}

// Related implements player.RelatedFetcher.
func (c *Client) Related(ctx context.Context, videoID, q string) ([]track.Track, error) {
	params := url.Values{}
	if q != "" {
		params.Set("q", q)
	}
	path := "/api/related"
	if videoID != "" {
		path += "/" + url.PathEscape(videoID)
	}
	var body tracksBody
	if err := c.getJSON(ctx, path, params, &body); err != nil {
		return nil, err
	}
	return body.Tracks, nil
}

// StreamURL is the address a player opens to hear videoID.
func (c *Client) StreamURL(videoID string) string {
	return c.base + "/api/stream/" + url.PathEscape(videoID)
}

// DownloadURL is the attachment address for videoID. format may be empty.
func (c *Client) DownloadURL(videoID, title, format string) string {
	params := url.Values{}
	if title != "" {
		params.Set("title", title)
	}
	if format != "" {
		params.Set("format", format)
	}
	u := c.base + "/api/download/" + url.PathEscape(videoID)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
