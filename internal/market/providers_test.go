package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennypulse/pennypulse/internal/models"
)

func TestTiingoIntradayFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/iex/XYZ/prices")
		assert.Equal(t, "tk-test", r.URL.Query().Get("token"))
		assert.Equal(t, "5min", r.URL.Query().Get("resampleFreq"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"date":"2026-03-02T15:00:00.000Z","open":3.1,"high":3.3,"low":3.0,"close":3.2,"volume":50000},
			{"date":"2026-03-02T15:05:00.000Z","open":3.2,"high":3.4,"low":3.1,"close":3.3,"volume":60000},
			{"date":"not-a-date","open":0,"high":0,"low":0,"close":0,"volume":0}
		]`))
	}))
	defer srv.Close()

	p := NewTiingoProviderWithBaseURL("tk-test", srv.URL)
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)

	bars, err := p.FetchBars(context.Background(), "XYZ", models.Interval5m, start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2, "malformed row is skipped, not fatal")
	assert.Equal(t, 3.2, bars[0].Close)
	assert.Equal(t, float64(60000), bars[1].Volume)
}

func TestTiingoDailyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/tiingo/daily/XYZ/prices")
		w.Write([]byte(`[{"date":"2026-03-02","open":3.1,"high":3.3,"low":3.0,"close":3.2,"volume":900000}]`))
	}))
	defer srv.Close()

	p := NewTiingoProviderWithBaseURL("tk", srv.URL)
	bars, err := p.FetchBars(context.Background(), "XYZ", models.Interval1d,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 1)
}

func TestTiingo429IsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewTiingoProviderWithBaseURL("tk", srv.URL)
	_, err := p.FetchBars(context.Background(), "XYZ", models.Interval1m, time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestYahooChartParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v8/finance/chart/XYZ")
		w.Write([]byte(`{"chart":{"result":[{
			"timestamp":[1770000000,1770000060],
			"indicators":{"quote":[{
				"open":[3.1,3.2],"high":[3.3,3.4],"low":[3.0,3.1],
				"close":[3.2,3.3],"volume":[50000,60000]
			}]}
		}],"error":null}}`))
	}))
	defer srv.Close()

	p := NewYahooProviderWithBaseURL(srv.URL)
	bars, err := p.FetchBars(context.Background(), "XYZ", models.Interval1m,
		time.Unix(1769999000, 0), time.Unix(1770001000, 0))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 3.3, bars[1].Close)
	assert.Equal(t, time.Unix(1770000000, 0).UTC(), bars[0].TS)
}

func TestYahooErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	p := NewYahooProviderWithBaseURL(srv.URL)
	_, err := p.FetchBars(context.Background(), "GHOST", models.Interval1d, time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestStooqCSVParsing(t *testing.T) {
	csvBody := strings.Join([]string{
		"Date,Open,High,Low,Close,Volume",
		"2026-03-02,3.10,3.30,3.00,3.20,900000",
		"bad,row,here",
		"2026-03-03,3.20,3.40,3.10,3.30,800000",
	}, "\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "xyz.us", r.URL.Query().Get("s"))
		w.Write([]byte(csvBody))
	}))
	defer srv.Close()

	p := NewStooqProviderWithBaseURL(srv.URL)
	bars, err := p.FetchBars(context.Background(), "XYZ", models.Interval1d,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 3.30, bars[1].Close)
}

func TestStooqSkipsIntraday(t *testing.T) {
	p := NewStooqProvider()
	bars, err := p.FetchBars(context.Background(), "XYZ", models.Interval1m, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Nil(t, bars)
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeProvider{name: "a"}))
	require.NoError(t, reg.Register(&fakeProvider{name: "b"}))
	assert.Error(t, reg.Register(&fakeProvider{name: "a"}))

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	chain := reg.Chain()
	require.Len(t, chain, 2)
	assert.Equal(t, "a", chain[0].Name())
}
