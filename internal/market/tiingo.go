package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pennypulse/pennypulse/internal/models"
)

// TiingoProvider is the primary paid provider. Free-tier budget is 1000
// requests per hour; the bucket below stays inside it with headroom for the
// analyzer's nightly burst.
type TiingoProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewTiingoProvider(apiKey string) *TiingoProvider {
	return &TiingoProvider{
		apiKey:  apiKey,
		baseURL: "https://api.tiingo.com",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewTiingoProviderWithBaseURL is the test constructor.
func NewTiingoProviderWithBaseURL(apiKey, baseURL string) *TiingoProvider {
	p := NewTiingoProvider(apiKey)
	p.baseURL = baseURL
	return p
}

func (p *TiingoProvider) Name() string { return "tiingo" }

func (p *TiingoProvider) RateLimitSpec() RateLimitSpec {
	return RateLimitSpec{RPS: 1000.0 / 3600.0, Burst: 40, MaxWait: 2 * time.Second}
}

type tiingoBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (p *TiingoProvider) FetchBars(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]models.Bar, error) {
	var endpoint string
	q := url.Values{}
	q.Set("token", p.apiKey)
	q.Set("startDate", start.UTC().Format("2006-01-02"))
	q.Set("endDate", end.UTC().Format("2006-01-02"))

	if interval == models.Interval1d {
		endpoint = fmt.Sprintf("%s/tiingo/daily/%s/prices", p.baseURL, url.PathEscape(ticker))
	} else {
		endpoint = fmt.Sprintf("%s/iex/%s/prices", p.baseURL, url.PathEscape(ticker))
		q.Set("resampleFreq", tiingoFreq(interval))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("tiingo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tiingo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: tiingo 429", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tiingo: status %d: %s", resp.StatusCode, body)
	}

	var raw []tiingoBar
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("tiingo: decode: %w", err)
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, b := range raw {
		ts, err := parseTiingoDate(b.Date)
		if err != nil {
			continue // skip malformed rows, keep the rest
		}
		if ts.Before(start) || ts.After(end) {
			continue
		}
		bars = append(bars, models.Bar{
			TS: ts, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		})
	}
	return bars, nil
}

func tiingoFreq(interval models.Interval) string {
	switch interval {
	case models.Interval1m:
		return "1min"
	case models.Interval5m:
		return "5min"
	case models.Interval15m:
		return "15min"
	default:
		return "1hour"
	}
}

func parseTiingoDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("tiingo: unparseable date %q", s)
}
