package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/pennypulse/pennypulse/internal/models"
)

const secBaseURL = "https://www.sec.gov/cgi-bin/browse-edgar"

// secRPS is EDGAR's published fair-access ceiling.
const secRPS = 10

// SECFetcher polls EDGAR's current-filings Atom feed for one form type.
// EDGAR rejects requests without a descriptive User-Agent, so the constructor
// demands one; config validation enforces the operator-email format.
type SECFetcher struct {
	formType  string
	userAgent string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	parser    *gofeed.Parser
}

func NewSECFetcher(formType, userAgent string) *SECFetcher {
	return &SECFetcher{
		formType:  formType,
		userAgent: userAgent,
		baseURL:   secBaseURL,
		client:    &http.Client{},
		limiter:   rate.NewLimiter(rate.Limit(secRPS), secRPS),
		parser:    gofeed.NewParser(),
	}
}

// WithBaseURL points the fetcher at a test server.
func (f *SECFetcher) WithBaseURL(base string) *SECFetcher {
	f.baseURL = base
	return f
}

func (f *SECFetcher) SourceID() string {
	return "sec_" + strings.ToLower(strings.ReplaceAll(f.formType, "-", ""))
}

func (f *SECFetcher) Fetch(ctx context.Context, since time.Time) ([]models.RawItem, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{
		"action": {"getcurrent"},
		"type":   {f.formType},
		"count":  {"100"},
		"output": {"atom"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edgar request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("edgar status %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("edgar parse: %w", err)
	}

	observed := time.Now().UTC()
	items := make([]models.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		item, ok := f.toRawItem(entry, observed)
		if !ok {
			log.Debug().Str("component", "feeds").Str("source", f.SourceID()).
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

var accessionRe = regexp.MustCompile(`(\d{10}-\d{2}-\d{6})`)

func (f *SECFetcher) toRawItem(entry *gofeed.Item, observed time.Time) (models.RawItem, bool) {
	if entry.PublishedParsed == nil && entry.UpdatedParsed == nil {
		return models.RawItem{}, false
	}
	published := entry.PublishedParsed
	if published == nil {
		published = entry.UpdatedParsed
	}

	// Accession number is the canonical identity of a filing; it appears in
	// both the entry ID and the index link.
	accession := accessionRe.FindString(entry.GUID)
	if accession == "" {
		accession = accessionRe.FindString(entry.Link)
	}
	if accession == "" {
		return models.RawItem{}, false
	}

	item := models.RawItem{
		SourceID:    f.SourceID(),
		CanonicalID: accession,
		TSPublished: published.UTC(),
		TSObserved:  observed,
		Title:       NormalizeTitle(entry.Title),
		BodySnippet: NormalizeTitle(entry.Description),
		Link:        NormalizeLink(entry.Link),
		Metadata:    map[string]string{"form_type": f.formType, "accession": accession},
	}
	if cik := entryCIK(entry.Title); cik != "" {
		item.Metadata["cik"] = cik
	}
	return item, true
}

var cikRe = regexp.MustCompile(`\((\d{7,10})\)`)

// entryCIK pulls the filer CIK out of EDGAR's "FORM - Name (0001234567)
// (Filer)" title convention.
func entryCIK(title string) string {
	m := cikRe.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}
