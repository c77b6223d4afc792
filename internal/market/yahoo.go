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

// YahooProvider wraps the unauthenticated chart API. It sits behind tiingo in
// the default chain: no credentials, but stricter unofficial throttling.
type YahooProvider struct {
	baseURL string
	client  *http.Client
}

func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		baseURL: "https://query1.finance.yahoo.com",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func NewYahooProviderWithBaseURL(baseURL string) *YahooProvider {
	p := NewYahooProvider()
	p.baseURL = baseURL
	return p
}

func (p *YahooProvider) Name() string { return "yahoo" }

func (p *YahooProvider) RateLimitSpec() RateLimitSpec {
	return RateLimitSpec{RPS: 2, Burst: 5, MaxWait: 2 * time.Second}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *YahooProvider) FetchBars(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]models.Bar, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.UTC().Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.UTC().Unix()))
	q.Set("interval", yahooInterval(interval))
	q.Set("includePrePost", "true")

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(ticker), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pennypulse)")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: yahoo 429", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("yahoo: status %d: %s", resp.StatusCode, body)
	}

	var parsed yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("yahoo: decode: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo: %s: %s", parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]models.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.Close) {
			break
		}
		// Yahoo emits null rows for halted minutes; they decode to zero.
		if quote.Close[i] == 0 && quote.Open[i] == 0 {
			continue
		}
		bars = append(bars, models.Bar{
			TS:     time.Unix(ts, 0).UTC(),
			Open:   quote.Open[i],
			High:   quote.High[i],
			Low:    quote.Low[i],
			Close:  quote.Close[i],
			Volume: quote.Volume[i],
		})
	}
	return bars, nil
}

func yahooInterval(interval models.Interval) string {
	switch interval {
	case models.Interval1m:
		return "1m"
	case models.Interval5m:
		return "5m"
	case models.Interval15m:
		return "15m"
	case models.Interval1h:
		return "1h"
	default:
		return "1d"
	}
}
