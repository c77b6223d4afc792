package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/models"
)

// RSSFetcher handles generic RSS/Atom sources, including PR wires. Canonical
// ID is the feed GUID when present, the normalized link otherwise, and a hash
// of title + publish time as a last resort (some wires omit both GUID and
// per-item links on syndicated copies).
type RSSFetcher struct {
	sourceID  string
	feedURL   string
	userAgent string
	client    *http.Client
	parser    *gofeed.Parser
}

func NewRSSFetcher(sourceID, feedURL, userAgent string) *RSSFetcher {
	return &RSSFetcher{
		sourceID:  sourceID,
		feedURL:   feedURL,
		userAgent: userAgent,
		client:    &http.Client{},
		parser:    gofeed.NewParser(),
	}
}

func (f *RSSFetcher) SourceID() string { return f.sourceID }

func (f *RSSFetcher) Fetch(ctx context.Context, since time.Time) ([]models.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.feedURL, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", f.sourceID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s status %d", f.sourceID, resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s parse: %w", f.sourceID, err)
	}

	observed := time.Now().UTC()
	items := make([]models.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		item, ok := f.toRawItem(entry, observed)
		if !ok {
			log.Debug().Str("component", "feeds").Str("source", f.sourceID).
				Str("title", entry.Title).Msg("skipping malformed entry")
			continue
		}
		if !item.TSPublished.After(since) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (f *RSSFetcher) toRawItem(entry *gofeed.Item, observed time.Time) (models.RawItem, bool) {
	if entry.Title == "" || entry.PublishedParsed == nil {
		return models.RawItem{}, false
	}
	published := entry.PublishedParsed.UTC()

	canonical := entry.GUID
	if canonical == "" && entry.Link != "" {
		canonical = NormalizeLink(entry.Link)
	}
	if canonical == "" {
		canonical = FallbackCanonicalID(entry.Title, published)
	}

	return models.RawItem{
		SourceID:    f.sourceID,
		CanonicalID: canonical,
		TSPublished: published,
		TSObserved:  observed,
		Title:       NormalizeTitle(entry.Title),
		BodySnippet: NormalizeTitle(entry.Description),
		Link:        NormalizeLink(entry.Link),
		Metadata:    map[string]string{},
	}, true
}
