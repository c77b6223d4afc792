package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennypulse/pennypulse/internal/models"
)

const secAtomSample = `<?xml version="1.0" encoding="ISO-8859-1"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Latest Filings</title>
  <updated>2026-08-24T12:00:00-04:00</updated>
  <entry>
    <title>424B5 - Acme Biopharma Inc. (0001234567) (Filer)</title>
    <link rel="alternate" href="https://www.sec.gov/Archives/edgar/data/1234567/000121390026001234-index.htm"/>
    <id>urn:tag:sec.gov,2008:accession-number=0001213900-26-001234</id>
    <updated>2026-08-24T11:30:00-04:00</updated>
    <summary>Prospectus supplement</summary>
  </entry>
  <entry>
    <title>424B5 - Broken Entry Without Accession</title>
    <link rel="alternate" href="https://www.sec.gov/nothing-here"/>
    <id>urn:tag:sec.gov,2008:malformed</id>
    <updated>2026-08-24T11:00:00-04:00</updated>
  </entry>
  <entry>
    <title>424B5 - Old Filing Corp (0007654321) (Filer)</title>
    <link rel="alternate" href="https://www.sec.gov/Archives/edgar/data/7654321/000121390026000001-index.htm"/>
    <id>urn:tag:sec.gov,2008:accession-number=0001213900-26-000001</id>
    <updated>2026-08-20T09:00:00-04:00</updated>
  </entry>
</feed>`

func TestSECFetcher(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "getcurrent", r.URL.Query().Get("action"))
		assert.Equal(t, "424B5", r.URL.Query().Get("type"))
		w.Write([]byte(secAtomSample))
	}))
	defer srv.Close()

	f := NewSECFetcher("424B5", "PennyPulse/1.0 ops@example.com").WithBaseURL(srv.URL)
	since := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	items, err := f.Fetch(context.Background(), since)
	require.NoError(t, err)

	// Malformed entry skipped, stale entry filtered by since.
	require.Len(t, items, 1)
	assert.Equal(t, "PennyPulse/1.0 ops@example.com", gotUA)
	assert.Equal(t, "sec_424b5", items[0].SourceID)
	assert.Equal(t, "0001213900-26-001234", items[0].CanonicalID)
	assert.Equal(t, "424B5", items[0].Metadata["form_type"])
	assert.Equal(t, "0001234567", items[0].Metadata["cik"])
	assert.Equal(t, "424B5 - Acme Biopharma Inc. (0001234567) (Filer)", items[0].Title)
}

func TestSECFetcherServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewSECFetcher("424B5", "PennyPulse/1.0 ops@example.com").WithBaseURL(srv.URL)
	_, err := f.Fetch(context.Background(), time.Time{})
	assert.Error(t, err)
}

const rssSample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
  <title>Wire</title>
  <item>
    <title>  Acme Biopharma   Announces FDA Approval (NASDAQ: ACME)  </title>
    <link>https://wire.example.com/story/1?utm_source=rss&amp;utm_medium=feed&amp;id=9</link>
    <guid>wire-guid-1</guid>
    <pubDate>Mon, 24 Aug 2026 14:05:00 GMT</pubDate>
    <description>Approval of lead candidate.</description>
  </item>
  <item>
    <title>Story Without GUID</title>
    <link>HTTPS://Wire.Example.COM/story/2</link>
    <pubDate>Mon, 24 Aug 2026 14:10:00 GMT</pubDate>
  </item>
  <item>
    <title>No pubDate, must be skipped</title>
    <link>https://wire.example.com/story/3</link>
  </item>
</channel></rss>`

func TestRSSFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssSample))
	}))
	defer srv.Close()

	f := NewRSSFetcher("wire_test", srv.URL, "PennyPulse/1.0 ops@example.com")
	items, err := f.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "wire-guid-1", items[0].CanonicalID)
	assert.Equal(t, "Acme Biopharma Announces FDA Approval (NASDAQ: ACME)", items[0].Title)
	assert.Equal(t, "https://wire.example.com/story/1?id=9", items[0].Link, "tracking params stripped")

	// No GUID: canonical ID falls back to the normalized link.
	assert.Equal(t, "https://wire.example.com/story/2", items[1].CanonicalID)
}

func TestPRWireTickerHints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssSample))
	}))
	defer srv.Close()

	f := NewPRWireFetcher("wire_test", srv.URL, "")
	items, err := f.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME"}, items[0].TickersHint)
	assert.Empty(t, items[1].TickersHint)
}

func TestNormalizeLink(t *testing.T) {
	assert.Equal(t,
		"https://example.com/a?id=1",
		NormalizeLink("HTTPS://Example.COM/a?utm_campaign=x&id=1&fbclid=abc#frag"))
	assert.Equal(t, "not a url", NormalizeLink("  not a url  "))
}

func TestFallbackCanonicalIDStable(t *testing.T) {
	ts := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	a := FallbackCanonicalID("Some  Headline", ts)
	b := FallbackCanonicalID("Some Headline", ts)
	assert.Equal(t, a, b, "whitespace-normalized titles hash alike")
	assert.NotEqual(t, a, FallbackCanonicalID("Some Headline", ts.Add(time.Minute)))
}

type slowFetcher struct{ delay time.Duration }

func (s slowFetcher) SourceID() string { return "slow" }
func (s slowFetcher) Fetch(ctx context.Context, _ time.Time) ([]models.RawItem, error) {
	select {
	case <-time.After(s.delay):
		return []models.RawItem{{SourceID: "slow", CanonicalID: "x"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type staticFetcher struct{ items []models.RawItem }

func (s staticFetcher) SourceID() string { return "static" }
func (s staticFetcher) Fetch(context.Context, time.Time) ([]models.RawItem, error) {
	return s.items, nil
}

func TestFetchAllTimeoutIsolatesSource(t *testing.T) {
	fetchers := []Fetcher{
		slowFetcher{delay: time.Second},
		staticFetcher{items: []models.RawItem{{SourceID: "static", CanonicalID: "1"}}},
	}
	res := FetchAll(context.Background(), fetchers, time.Time{}, 20*time.Millisecond)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "static", res.Items[0].SourceID)
	assert.Contains(t, res.Errors, "slow")
}
