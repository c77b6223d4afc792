// Package feeds pulls catalyst items from SEC EDGAR, PR wires, and generic
// RSS sources and normalizes them into RawItems for the classifier.
package feeds

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pennypulse/pennypulse/internal/models"
)

// Fetcher is one feed source. Fetch returns items published after since,
// newest last; implementations must honor ctx cancellation.
type Fetcher interface {
	SourceID() string
	Fetch(ctx context.Context, since time.Time) ([]models.RawItem, error)
}

// PoolResult is the joined outcome of one cycle's fetch fan-out.
type PoolResult struct {
	Items  []models.RawItem
	Errors map[string]error // source_id -> fetch error (timeouts included)
}

// FetchAll runs every fetcher concurrently with a per-fetcher timeout. A
// failed or timed-out source contributes zero items for the cycle; its error
// is reported but never aborts the join.
func FetchAll(ctx context.Context, fetchers []Fetcher, since time.Time, timeout time.Duration) PoolResult {
	type sourceBatch struct {
		source string
		items  []models.RawItem
		err    error
	}

	results := make([]sourceBatch, len(fetchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fetchers {
		i, f := i, f
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			items, err := f.Fetch(fctx, since)
			results[i] = sourceBatch{source: f.SourceID(), items: items, err: err}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are per-source

	out := PoolResult{Errors: make(map[string]error)}
	for _, r := range results {
		if r.err != nil {
			out.Errors[r.source] = r.err
			log.Warn().Err(r.err).Str("component", "feeds").Str("source", r.source).
				Msg("fetch failed, skipping source this cycle")
			continue
		}
		out.Items = append(out.Items, r.items...)
	}
	return out
}

// trackingParams are stripped during link normalization.
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "msclkid": true,
	"mc_cid": true, "mc_eid": true, "ref": true, "cmpid": true,
}

// NormalizeLink lowercases scheme and host and strips tracking parameters so
// syndicated copies of one story share a canonical URL.
func NormalizeLink(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// NormalizeTitle trims and collapses whitespace.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

// FallbackCanonicalID hashes title + publication time for feeds that carry no
// stable GUID.
func FallbackCanonicalID(title string, published time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", NormalizeTitle(title), published.Unix())))
	return hex.EncodeToString(sum[:16])
}
