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

// SectorSource resolves a ticker's sector and industry.
type SectorSource interface {
	Profile(ctx context.Context, ticker string) (sector, industry string, err error)
}

// SectorResult is the sector context for one ticker.
type SectorResult struct {
	Sector      string
	Industry    string
	SectorETF   string
	RelReturn5d float64 // sector ETF 5d return minus broad market 5d return
}

// sectorETFs maps GICS sector names to their SPDR sector funds.
var sectorETFs = map[string]string{
	"Technology":             "XLK",
	"Healthcare":             "XLV",
	"Financial Services":     "XLF",
	"Energy":                 "XLE",
	"Industrials":            "XLI",
	"Consumer Cyclical":      "XLY",
	"Consumer Defensive":     "XLP",
	"Basic Materials":        "XLB",
	"Utilities":              "XLU",
	"Real Estate":            "XLRE",
	"Communication Services": "XLC",
}

// SectorProvider resolves sector context with a relative-return tint against
// the sector's ETF.
type SectorProvider struct {
	source SectorSource
	bars   BarSource
	cache  *memo
	now    func() time.Time
}

func NewSectorProvider(source SectorSource, bars BarSource, now func() time.Time) *SectorProvider {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SectorProvider{
		source: source,
		bars:   bars,
		cache:  newMemo(5 * time.Minute),
		now:    now,
	}
}

// At returns sector context, identity (empty sector) on failure.
func (p *SectorProvider) At(ctx context.Context, ticker string, instant time.Time) SectorResult {
	if v, ok := p.cache.get(ticker, p.now()); ok {
		return v.(SectorResult)
	}

	sector, industry, err := p.source.Profile(ctx, ticker)
	if err != nil {
		log.Debug().Err(err).Str("component", "enrich").Str("ticker", ticker).
			Msg("sector unavailable")
		return SectorResult{}
	}

	result := SectorResult{Sector: sector, Industry: industry}
	if etf, ok := sectorETFs[sector]; ok {
		result.SectorETF = etf
		result.RelReturn5d = p.relReturn(ctx, etf, instant)
	}

	p.cache.put(ticker, result, p.now())
	return result
}

func (p *SectorProvider) relReturn(ctx context.Context, etf string, instant time.Time) float64 {
	start := instant.Add(-10 * 24 * time.Hour)
	etfBars, err := p.bars.Bars(ctx, etf, models.Interval1d, start, instant)
	if err != nil {
		return 0
	}
	spyBars, err := p.bars.Bars(ctx, marketProxyTicker, models.Interval1d, start, instant)
	if err != nil {
		return 0
	}
	return trailingReturn(etfBars, 5) - trailingReturn(spyBars, 5)
}

// YahooSectorSource reads the assetProfile quoteSummary module.
type YahooSectorSource struct {
	baseURL string
	client  *http.Client
}

func NewYahooSectorSource() *YahooSectorSource {
	return &YahooSectorSource{
		baseURL: "https://query1.finance.yahoo.com",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func NewYahooSectorSourceWithBaseURL(baseURL string) *YahooSectorSource {
	s := NewYahooSectorSource()
	s.baseURL = baseURL
	return s
}

type yahooAssetProfile struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

func (s *YahooSectorSource) Profile(ctx context.Context, ticker string) (string, string, error) {
	endpoint := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=assetProfile",
		s.baseURL, url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("sector: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pennypulse)")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("sector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("sector: status %d", resp.StatusCode)
	}

	var parsed yahooAssetProfile
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", fmt.Errorf("sector: decode: %w", err)
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return "", "", fmt.Errorf("sector: empty result for %s", ticker)
	}
	profile := parsed.QuoteSummary.Result[0].AssetProfile
	return profile.Sector, profile.Industry, nil
}
