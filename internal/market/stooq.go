package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pennypulse/pennypulse/internal/models"
)

// StooqProvider is the last-resort fallback. Daily bars only, CSV download
// endpoint, no credentials. Intraday queries skip it.
type StooqProvider struct {
	baseURL string
	client  *http.Client
}

func NewStooqProvider() *StooqProvider {
	return &StooqProvider{
		baseURL: "https://stooq.com",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func NewStooqProviderWithBaseURL(baseURL string) *StooqProvider {
	p := NewStooqProvider()
	p.baseURL = baseURL
	return p
}

func (p *StooqProvider) Name() string { return "stooq" }

func (p *StooqProvider) RateLimitSpec() RateLimitSpec {
	return RateLimitSpec{RPS: 1, Burst: 2, MaxWait: time.Second}
}

func (p *StooqProvider) FetchBars(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]models.Bar, error) {
	if interval != models.Interval1d {
		return nil, nil // daily only; the chain falls through
	}

	q := url.Values{}
	q.Set("s", strings.ToLower(ticker)+".us")
	q.Set("i", "d")
	q.Set("d1", start.UTC().Format("20060102"))
	q.Set("d2", end.UTC().Format("20060102"))

	endpoint := fmt.Sprintf("%s/q/d/l/?%s", p.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("stooq: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stooq: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stooq: status %d", resp.StatusCode)
	}

	return parseStooqCSV(resp.Body)
}

// parseStooqCSV reads "Date,Open,High,Low,Close,Volume" rows, skipping
// malformed lines.
func parseStooqCSV(r io.Reader) ([]models.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var bars []models.Bar
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stooq: csv: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && strings.EqualFold(row[0], "Date") {
				continue
			}
		}
		if len(row) < 6 {
			continue
		}

		ts, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(row[1], 64)
		high, err2 := strconv.ParseFloat(row[2], 64)
		low, err3 := strconv.ParseFloat(row[3], 64)
		closePx, err4 := strconv.ParseFloat(row[4], 64)
		volume, err5 := strconv.ParseFloat(row[5], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}

		bars = append(bars, models.Bar{
			TS: ts.UTC(), Open: open, High: high, Low: low, Close: closePx, Volume: volume,
		})
	}
	return bars, nil
}
