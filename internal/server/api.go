package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kabutune/internal/config"
	"kabutune/internal/logger"
	"kabutune/internal/news"
	"kabutune/internal/search"
	"kabutune/internal/stream"
)

// Searcher is the search and related proxy.
type Searcher interface {
	Search(ctx context.Context, query, pageToken string) (*search.Result, error)
	Related(ctx context.Context, videoID, q string) (*search.Result, error)
	Backend() string
}

// Streamer writes audio for a video or fails before writing anything.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, req stream.Request) error
}

// NewsSource returns merged feed items.
type NewsSource interface {
	Items(ctx context.Context, feeds []string) ([]news.Item, error)
}

// API handles HTTP endpoints.
type API struct {
	search  Searcher
	stream  Streamer
	news    NewsSource
	sources []string
	log     logger.Logger
}

// NewAPI wires the handlers. sources is only reported by Health.
func NewAPI(searcher Searcher, streamer Streamer, newsSource NewsSource, sources []string, log logger.Logger) *API {
	return &API{
		search:  searcher,
		stream:  streamer,
		news:    newsSource,
		sources: sources,
		log:     log.WithField("component", "api"),
	}
}

// Search proxies a track search.
func (a *API) Search(c *gin.Context) {
	res, err := a.search.Search(c.Request.Context(), c.Query("q"), c.Query("pageToken"))
	if err != nil {
		a.logFailure(c, err, "Search request failed")
		c.JSON(search.StatusOf(err), TracksResponse{
			Error: search.MessageOf(err, "Search failed"),
		})
		return
	}

	c.JSON(http.StatusOK, TracksResponse{
		Tracks:        res.Tracks,
		NextPageToken: res.NextPageToken,
	})
}

// Related serves both /related/:id and /related?q=.
func (a *API) Related(c *gin.Context) {
	res, err := a.search.Related(c.Request.Context(), c.Param("id"), c.Query("q"))
	if err != nil {
		a.logFailure(c, err, "Related request failed")
		c.JSON(search.StatusOf(err), TracksResponse{
			Error: search.MessageOf(err, "Related lookup failed"),
		})
		return
	}

	c.JSON(http.StatusOK, TracksResponse{Tracks: res.Tracks})
}

// Stream proxies audio for inline playback.
func (a *API) Stream(c *gin.Context) {
	a.serveAudio(c, stream.Request{VideoID: c.Param("id")})
}

// Download proxies audio as an attachment, optionally transcoded.
func (a *API) Download(c *gin.Context) {
	var q DownloadQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid download parameters"})
		return
	}

	title := strings.TrimSpace(q.Title)
	if title == "" {
		title = c.Param("id")
	}
	a.serveAudio(c, stream.Request{
		VideoID:  c.Param("id"),
		Title:    title,
		Format:   q.Format,
		Download: true,
	})
}

func (a *API) serveAudio(c *gin.Context, req stream.Request) {
	err := a.stream.Serve(c.Writer, c.Request, req)
	if err == nil {
		return
	}
	if errors.Is(err, stream.ErrResponseStarted) {
		// status line is out, the connection is all we can drop
		c.Abort()
		return
	}
	status := stream.StatusOf(err)
	if status >= http.StatusInternalServerError {
		a.logFailure(c, err, "Audio request failed")
	}
	c.JSON(status, ErrorResponse{Error: stream.MessageOf(err)})
}

// News returns merged headlines. feeds is an optional comma separated list
// of feed URLs.
func (a *API) News(c *gin.Context) {
	feeds := config.SplitList(c.QueryArray("feeds")...)
	items, err := a.news.Items(c.Request.Context(), feeds)
	if err != nil {
		a.logFailure(c, err, "News request failed")
		c.JSON(http.StatusInternalServerError, NewsResponse{
			Items: []news.Item{},
			Error: "Failed to fetch news",
		})
		return
	}
	if items == nil {
		items = []news.Item{}
	}

	c.JSON(http.StatusOK, NewsResponse{Items: items})
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		OK:      true,
		Backend: a.search.Backend(),
		Sources: a.sources,
	})
}

func (a *API) logFailure(c *gin.Context, err error, msg string) {
	a.log.WithError(err).WithFields(logger.Fields{
		"request_id": c.GetString(requestIDKey),
		"path":       c.Request.URL.Path,
	}).Error(msg)
}
