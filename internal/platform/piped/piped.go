// Package piped is a client for the Piped API, a public mirror of the
// YouTube index used for search and as an alternate stream resolver.
package piped

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"kabutune/internal/logger"
	"kabutune/internal/platform"
	"kabutune/internal/platform/youtube"
	"kabutune/internal/track"
)

const FilterMusicSongs = "music_songs"

type Client struct {
	base   string
	region string
	http   *http.Client
	log    logger.Logger
}

func New(base, region string, httpClient *http.Client, log logger.Logger) *Client {
	return &Client{
		base:   strings.TrimSuffix(base, "/"),
		region: region,
		http:   httpClient,
		log:    log.WithField("backend", "piped"),
	}
}

func (c *Client) Name() string {
	return "piped"
}

// Item is one search hit or related stream.
type Item struct {
	URL          string          `json:"url"`
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Thumbnail    string          `json:"thumbnail"`
	Thumbnails   json.RawMessage `json:"thumbnails"`
	UploaderName string          `json:"uploaderName"`
	Uploader     string          `json:"uploader"`
	Duration     int             `json:"duration"`
	Views        int64           `json:"views"`
}

// VideoID resolves the item's id from either the id or the url field.
func (i Item) VideoID() string {
	if youtube.IsVideoID(i.ID) {
		return i.ID
	}
	return youtube.ExtractID(i.URL)
}

func (i Item) thumbnail() string {
	if i.Thumbnail != "" {
		return i.Thumbnail
	}
	var thumbs []string
	if json.Unmarshal(i.Thumbnails, &thumbs) == nil && len(thumbs) > 0 {
		return thumbs[0]
	}
	var objs []struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(i.Thumbnails, &objs) == nil && len(objs) > 0 {
		return objs[0].URL
	}
	return ""
}

// Track converts the item; ok is false for channels, playlists and hits
// without a usable id.
func (i Item) Track() (track.Track, bool) {
	switch i.Type {
	case "channel", "playlist":
		return track.Track{}, false
	}
	id := i.VideoID()
	if id == "" {
		return track.Track{}, false
	}
	channel := i.UploaderName
	if channel == "" {
		channel = i.Uploader
	}
	thumb := i.thumbnail()
	if thumb == "" {
		thumb = track.ThumbnailURL(id)
	}
	t := track.New(id, i.Title, channel, thumb, i.Duration)
	if i.Views > 0 {
		t.Views = i.Views
	}
	return t, true
}

// Page is a search result page. NextPage is an opaque continuation token.
type Page struct {
	Items    []Item
	NextPage string
}

// Search runs a query against the given filter, e.g. FilterMusicSongs.
func (c *Client) Search(ctx context.Context, query, filter string) (*Page, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("filter", filter)
	if c.region != "" {
		q.Set("region", c.region)
	}
	body, err := c.get(ctx, "/search?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return decodePage(body)
}

// NextPage continues a previous Search.
func (c *Client) NextPage(ctx context.Context, query, filter, token string) (*Page, error) {
	q := url.Values{}
	q.Set("nextpage", token)
	q.Set("q", query)
	q.Set("filter", filter)
	body, err := c.get(ctx, "/nextpage/search?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return decodePage(body)
}

// decodePage accepts both the legacy bare array and the {items, nextpage}
// object.
func decodePage(body []byte) (*Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode piped search: %w", err)
		}
		return &Page{Items: items}, nil
	}
	var obj struct {
		Items    []Item `json:"items"`
		NextPage string `json:"nextpage"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("decode piped search: %w", err)
	}
	return &Page{Items: obj.Items, NextPage: obj.NextPage}, nil
}

type AudioStream struct {
	URL      string `json:"url"`
	Format   string `json:"format"`
	MimeType string `json:"mimeType"`
	Codec    string `json:"codec"`
	Bitrate  int    `json:"bitrate"`
}

// Streams is the subset of /streams/{id} used here.
type Streams struct {
	Title          string        `json:"title"`
	Uploader       string        `json:"uploader"`
	Duration       int           `json:"duration"`
	ThumbnailURL   string        `json:"thumbnailUrl"`
	AudioStreams   []AudioStream `json:"audioStreams"`
	RelatedStreams []Item        `json:"relatedStreams"`
}

func (c *Client) Streams(ctx context.Context, videoID string) (*Streams, error) {
	if err := youtube.ValidateID(videoID); err != nil {
		return nil, err
	}
	body, err := c.get(ctx, "/streams/"+url.PathEscape(videoID))
	if err != nil {
		return nil, err
	}
	var s Streams
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode piped streams: %w", err)
	}
	return &s, nil
}

// ResolveURL picks an opus/webm audio stream, else the highest bitrate.
func (c *Client) ResolveURL(ctx context.Context, videoID string) (string, error) {
	s, err := c.Streams(ctx, videoID)
	if err != nil {
		return "", platform.Classify(err)
	}
	best := bestAudioStream(s.AudioStreams)
	if best == nil {
		return "", fmt.Errorf("%w: piped has no audio streams for %s", platform.ErrNotFound, videoID)
	}
	return best.URL, nil
}

func bestAudioStream(streams []AudioStream) *AudioStream {
	candidates := make([]AudioStream, 0, len(streams))
	for _, s := range streams {
		if s.URL != "" {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	for i, s := range candidates {
		if strings.Contains(strings.ToLower(s.Codec), "opus") || strings.Contains(strings.ToLower(s.MimeType), "webm") {
			return &candidates[i]
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Bitrate > candidates[j].Bitrate })
	return &candidates[0]
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build piped request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piped request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read piped response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.WithFields(logger.Fields{"path": path, "status": resp.StatusCode}).Warn("Piped returned non-2xx")
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return body, nil
}

// StatusError is returned for non-2xx answers. It matches
// platform.ErrUpstream, or platform.ErrRateLimited for 429.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("piped returned status %d", e.Code)
}

func (e *StatusError) Is(target error) bool {
	if e.Code == http.StatusTooManyRequests && target == platform.ErrRateLimited {
		return true
	}
	return target == platform.ErrUpstream
}
