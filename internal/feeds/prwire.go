package feeds

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pennypulse/pennypulse/internal/models"
)

// Known wire feed URLs, selectable by name in PP_SOURCES.
var WireFeeds = map[string]string{
	"prnewswire":    "https://www.prnewswire.com/rss/news-releases-list.rss",
	"globenewswire": "https://www.globenewswire.com/RssFeed/orgclass/1/feedTitle/GlobeNewswire",
	"businesswire":  "https://feed.businesswire.com/rss/home/?rss=G1QFDERJXkJeEFpRWQ==",
	"accesswire":    "https://www.accesswire.com/rss/latest",
}

// PRWireFetcher wraps the generic RSS fetcher and seeds tickers_hint from the
// exchange tag wires embed in headlines ("(NASDAQ: ABCD)").
type PRWireFetcher struct {
	*RSSFetcher
}

func NewPRWireFetcher(sourceID, feedURL, userAgent string) *PRWireFetcher {
	return &PRWireFetcher{RSSFetcher: NewRSSFetcher(sourceID, feedURL, userAgent)}
}

var exchangeTagRe = regexp.MustCompile(`(?i)\((?:NASDAQ|NYSE(?:\s+American)?|AMEX|OTC(?:QB|QX)?)\s*:\s*([A-Z]{1,5})\)`)

func (f *PRWireFetcher) Fetch(ctx context.Context, since time.Time) ([]models.RawItem, error) {
	items, err := f.RSSFetcher.Fetch(ctx, since)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].TickersHint = exchangeTickers(items[i].Title + " " + items[i].BodySnippet)
	}
	return items, nil
}

func exchangeTickers(text string) []string {
	var tickers []string
	seen := map[string]bool{}
	for _, m := range exchangeTagRe.FindAllStringSubmatch(text, -1) {
		t := strings.ToUpper(m[1])
		if !seen[t] {
			seen[t] = true
			tickers = append(tickers, t)
		}
	}
	return tickers
}
