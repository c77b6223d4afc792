package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/models"
)

// FloatSource fetches the public float share count for a ticker.
type FloatSource interface {
	SharesFloat(ctx context.Context, ticker string) (float64, error)
}

// FloatResult is the classified float with its score multiplier.
type FloatResult struct {
	Shares     float64
	Class      models.FloatClass
	Multiplier float64 // [0.9, 1.3]
}

// FloatProvider classifies float size; low-float names move harder on the
// same catalyst. Float changes slowly, hence the 30-day cache.
type FloatProvider struct {
	source FloatSource
	cache  *memo
	now    func() time.Time
}

func NewFloatProvider(source FloatSource, now func() time.Time) *FloatProvider {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &FloatProvider{
		source: source,
		cache:  newMemo(30 * 24 * time.Hour),
		now:    now,
	}
}

// At returns the float classification, identity on failure.
func (p *FloatProvider) At(ctx context.Context, ticker string) FloatResult {
	if v, ok := p.cache.get(ticker, p.now()); ok {
		return v.(FloatResult)
	}

	shares, err := p.source.SharesFloat(ctx, ticker)
	if err != nil || shares <= 0 {
		log.Debug().Err(err).Str("component", "enrich").Str("ticker", ticker).
			Msg("float unavailable, using identity")
		return FloatResult{Class: models.FloatUnknown, Multiplier: 1.0}
	}

	result := classifyFloat(shares)
	p.cache.put(ticker, result, p.now())
	return result
}

func classifyFloat(shares float64) FloatResult {
	switch {
	case shares < 10_000_000:
		return FloatResult{Shares: shares, Class: models.FloatMicro, Multiplier: 1.3}
	case shares < 50_000_000:
		return FloatResult{Shares: shares, Class: models.FloatLow, Multiplier: 1.2}
	case shares < 200_000_000:
		return FloatResult{Shares: shares, Class: models.FloatMedium, Multiplier: 1.0}
	default:
		return FloatResult{Shares: shares, Class: models.FloatHigh, Multiplier: 0.9}
	}
}

// YahooFloatSource reads floatShares from the quoteSummary statistics module.
type YahooFloatSource struct {
	baseURL string
	client  *http.Client
}

func NewYahooFloatSource() *YahooFloatSource {
	return &YahooFloatSource{
		baseURL: "https://query1.finance.yahoo.com",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func NewYahooFloatSourceWithBaseURL(baseURL string) *YahooFloatSource {
	s := NewYahooFloatSource()
	s.baseURL = baseURL
	return s
}

type yahooKeyStats struct {
	QuoteSummary struct {
		Result []struct {
			DefaultKeyStatistics struct {
				FloatShares struct {
					Raw float64 `json:"raw"`
				} `json:"floatShares"`
			} `json:"defaultKeyStatistics"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

func (s *YahooFloatSource) SharesFloat(ctx context.Context, ticker string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=defaultKeyStatistics",
		s.baseURL, url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("float: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pennypulse)")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("float: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("float: status %d", resp.StatusCode)
	}

	var parsed yahooKeyStats
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("float: decode: %w", err)
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return 0, fmt.Errorf("float: empty result for %s", ticker)
	}
	return parsed.QuoteSummary.Result[0].DefaultKeyStatistics.FloatShares.Raw, nil
}
