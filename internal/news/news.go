// Package news aggregates RSS/Atom feeds into one recency-sorted list.
package news

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"kabutune/internal/cache"
	"kabutune/internal/logger"
)

const (
	snippetRunes = 300
	fetchWorkers = 4
	isoLayout    = "2006-01-02T15:04:05.000Z07:00"
)

// Item is one entry of /api/news.
type Item struct {
	Title          string   `json:"title"`
	Link           string   `json:"link"`
	IsoDate        string   `json:"isoDate,omitempty"`
	PubDate        string   `json:"pubDate,omitempty"`
	ContentSnippet string   `json:"contentSnippet,omitempty"`
	Creator        string   `json:"creator,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Source         string   `json:"source,omitempty"`

	published time.Time
}

// Fetcher downloads and parses one feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*gofeed.Feed, error)
}

// HTTPFetcher fetches feeds with gofeed over the given client.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = "kabutune/1.0 (+news)"
	return parser.ParseURLWithContext(url, ctx)
}

type Options struct {
	Feeds    []string
	TTL      time.Duration
	MaxItems int
	PerFeed  int
	Timeout  time.Duration
}

// Aggregator keeps a single cached snapshot. The snapshot is shared by all
// callers whatever feed list they ask for.
type Aggregator struct {
	fetcher Fetcher
	opts    Options
	cell    *cache.Cell[[]Item]
	log     logger.Logger
}

func NewAggregator(fetcher Fetcher, opts Options, log logger.Logger) *Aggregator {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 40
	}
	if opts.PerFeed <= 0 {
		opts.PerFeed = 10
	}
	return &Aggregator{
		fetcher: fetcher,
		opts:    opts,
		cell:    cache.NewCell[[]Item](opts.TTL),
		log:     log.WithField("component", "news"),
	}
}

// WithClock replaces the cache time source, for tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.cell.WithClock(now)
	return a
}

// Items returns the cached snapshot if fresh, otherwise fetches feeds (or
// the default feeds when none are given) and replaces it. Individual feed
// failures are logged and skipped. When every feed fails the result is an
// empty list that is not cached.
//
// The refresh outlives ctx cancellation and is bounded by Options.Timeout
// instead, so a disconnecting caller cannot leave a partial snapshot behind.
func (a *Aggregator) Items(ctx context.Context, feeds []string) ([]Item, error) {
	if items, ok := a.cell.Get(); ok {
		return items, nil
	}
	if len(feeds) == 0 {
		feeds = a.opts.Feeds
	}

	items, succeeded := a.fetchAll(context.WithoutCancel(ctx), feeds)
	if succeeded == 0 && len(feeds) > 0 {
		a.log.WithField("feeds", len(feeds)).Warn("All news feeds failed")
		return []Item{}, nil
	}
	a.cell.Set(items)
	return items, nil
}

func (a *Aggregator) fetchAll(ctx context.Context, feeds []string) ([]Item, int) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	perFeed := make([][]Item, len(feeds))
	ok := make([]bool, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, url := range feeds {
		g.Go(func() error {
			feed, err := a.fetcher.Fetch(gctx, url)
			if err != nil {
				a.log.WithError(err).WithField("feed", url).Warn("Failed to parse feed")
				return nil
			}
			perFeed[i] = a.convert(feed)
			ok[i] = true
			return nil
		})
	}
	g.Wait()

	merged := []Item{}
	succeeded := 0
	for i := range feeds {
		if ok[i] {
			succeeded++
			merged = append(merged, perFeed[i]...)
		}
	}
	if succeeded == 0 {
		return merged, 0
	}

	sortByRecency(merged)
	if len(merged) > a.opts.MaxItems {
		merged = merged[:a.opts.MaxItems]
	}
	a.log.WithFields(logger.Fields{"feeds": succeeded, "items": len(merged)}).Debug("News refreshed")
	return merged, succeeded
}

func (a *Aggregator) convert(feed *gofeed.Feed) []Item {
	items := feed.Items
	if len(items) > a.opts.PerFeed {
		items = items[:a.opts.PerFeed]
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		item := Item{
			Title:      strings.TrimSpace(it.Title),
			Link:       it.Link,
			PubDate:    it.Published,
			Categories: it.Categories,
			Source:     feed.Title,
		}
		switch {
		case it.PublishedParsed != nil:
			item.published = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			item.published = *it.UpdatedParsed
		}
		if !item.published.IsZero() {
			item.IsoDate = item.published.UTC().Format(isoLayout)
		}
		if len(it.Authors) > 0 && it.Authors[0] != nil {
			item.Creator = it.Authors[0].Name
		}
		desc := it.Description
		if desc == "" {
			desc = it.Content
		}
		item.ContentSnippet = Snippet(desc, snippetRunes)
		out = append(out, item)
	}
	return out
}

// sortByRecency orders newest first. Undated items keep their relative
// order at the end.
func sortByRecency(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].published, items[j].published
		if a.IsZero() || b.IsZero() {
			return !a.IsZero() && b.IsZero()
		}
		return a.After(b)
	})
}

// Snippet renders HTML as collapsed plain text of at most n runes.
func Snippet(html string, n int) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	text := html
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:n]))
}
