// Package config loads all runtime settings from the environment.
//
// Every component takes a Settings (or a sub-struct of it) as a constructor
// argument; there are no process-wide settings globals. Each optional variable
// has a default, and Load reports every missing required variable at once so
// operators fix a broken deployment in one pass.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ConfigError is terminal at startup; the process exits with code 2.
type ConfigError struct {
	Missing []string
	Reason  string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("config: missing required environment variables: %s", strings.Join(e.Missing, ", "))
	}
	return "config: " + e.Reason
}

// Settings is the full runtime configuration, loaded once in main.
type Settings struct {
	// Required.
	WebhookURL   string // PP_WEBHOOK_URL
	SECUserAgent string // PP_SEC_USER_AGENT, e.g. "PennyPulse ops@example.com"

	// Provider chain and credentials.
	Providers    []string // PP_PROVIDERS, ordered; default tiingo,yahoo,stooq
	TiingoAPIKey string   // PP_TIINGO_API_KEY; required when tiingo is in the chain

	AdminWebhookURL string // PP_ADMIN_WEBHOOK_URL; falls back to WebhookURL
	DataDir         string // PP_DATA_DIR
	LogLevel        string // PP_LOG_LEVEL
	AdminAddr       string // PP_ADMIN_ADDR; empty disables the admin server

	// Admission thresholds.
	MinScore       float64       // PP_MIN_SCORE
	MinConfidence  float64       // PP_MIN_CONFIDENCE
	MaxAge         time.Duration // PP_MAX_AGE_MINUTES
	PriceBandLower float64       // PP_PRICE_BAND_LOWER
	PriceBandUpper float64       // PP_PRICE_BAND_UPPER

	// Classifier.
	SentimentAlpha float64 // PP_SENTIMENT_ALPHA
	KeywordsFile   string  // PP_KEYWORDS_FILE; optional yaml overlay
	AlertPerTicker bool    // PP_ALERT_PER_TICKER; one alert per resolved ticker

	// Feature flags, one per enrichment provider.
	EnableSentiment bool // PP_ENABLE_SENTIMENT
	EnableRegime    bool // PP_ENABLE_REGIME
	EnableRVol      bool // PP_ENABLE_RVOL
	EnableFloat     bool // PP_ENABLE_FLOAT
	EnableOffering  bool // PP_ENABLE_OFFERING
	EnableSector    bool // PP_ENABLE_SECTOR

	// Cycle cadence per session.
	CycleRegular  time.Duration // PP_CYCLE_REGULAR_SECONDS
	CycleExtended time.Duration // PP_CYCLE_EXTENDED_SECONDS
	CycleClosed   time.Duration // PP_CYCLE_CLOSED_SECONDS

	// Feeds.
	Sources      []string      // PP_SOURCES, enabled source ids
	FetchTimeout time.Duration // PP_FETCH_TIMEOUT_SECONDS, per fetcher per cycle

	// Dedup.
	DedupRetention time.Duration // PP_DEDUP_RETENTION_DAYS

	// Market data cache.
	CacheMaxEntries  int           // PP_CACHE_MAX_ENTRIES
	CacheTTLIntraday time.Duration // PP_CACHE_TTL_INTRADAY_MINUTES
	CacheTTLDaily    time.Duration // PP_CACHE_TTL_DAILY_MINUTES
	CacheWorkers     int           // PP_CACHE_WORKERS, bounded prefetch pool
	RedisAddr        string        // PP_REDIS_ADDR; empty disables the warm tier

	// Dispatcher.
	DispatchBurst     int           // PP_DISPATCH_BURST, alerts per window
	DispatchWindow    time.Duration // PP_DISPATCH_WINDOW_SECONDS
	DispatchQueueCap  int           // PP_DISPATCH_QUEUE_CAP
	DispatchHourlyCap int           // PP_DISPATCH_HOURLY_CAP
	AdmissionBlock    time.Duration // PP_ADMISSION_BLOCK_MS, backpressure bound

	// Journals.
	JournalMaxBytes int64 // PP_JOURNAL_MAX_BYTES before rotation
	JournalArchives int   // PP_JOURNAL_ARCHIVES kept after rotation

	// Heartbeat.
	HeartbeatCycles int // PP_HEARTBEAT_CYCLES

	// Analyzer.
	AnalyzerSchedule    string        // PP_ANALYZER_SCHEDULE, cron expression (UTC)
	AnalyzerLookback    time.Duration // PP_ANALYZER_LOOKBACK_DAYS
	MissedThreshold     float64       // PP_MISSED_THRESHOLD, min max_return
	TradeabilityFilter  bool          // PP_TRADEABILITY_FILTER
	MinVolumeAtEntry    float64       // PP_MIN_VOLUME_AT_ENTRY, shares
	MaxSpreadPct        float64       // PP_MAX_SPREAD_PCT
	MiningMinOccurrence int           // PP_MINING_MIN_OCCURRENCES
	MiningMinLift       float64       // PP_MINING_MIN_LIFT
	FDRAlpha            float64       // PP_FDR_ALPHA, Benjamini-Hochberg level
}

// Load reads settings from the environment. A local .env file is honored when
// present. All missing required variables are reported together.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		WebhookURL:   os.Getenv("PP_WEBHOOK_URL"),
		SECUserAgent: os.Getenv("PP_SEC_USER_AGENT"),
		TiingoAPIKey: os.Getenv("PP_TIINGO_API_KEY"),

		AdminWebhookURL: os.Getenv("PP_ADMIN_WEBHOOK_URL"),
		DataDir:         getEnv("PP_DATA_DIR", "data"),
		LogLevel:        getEnv("PP_LOG_LEVEL", "info"),
		AdminAddr:       getEnv("PP_ADMIN_ADDR", "127.0.0.1:9614"),

		Providers: splitList(getEnv("PP_PROVIDERS", "tiingo,yahoo,stooq")),
		Sources:   splitList(getEnv("PP_SOURCES", "sec_8k,sec_424b5,prnewswire,globenewswire")),

		MinScore:       getEnvFloat("PP_MIN_SCORE", 0.25),
		MinConfidence:  getEnvFloat("PP_MIN_CONFIDENCE", 0.4),
		MaxAge:         getEnvMinutes("PP_MAX_AGE_MINUTES", 60),
		PriceBandLower: getEnvFloat("PP_PRICE_BAND_LOWER", 0.10),
		PriceBandUpper: getEnvFloat("PP_PRICE_BAND_UPPER", 10.00),

		SentimentAlpha: getEnvFloat("PP_SENTIMENT_ALPHA", 0.3),
		KeywordsFile:   os.Getenv("PP_KEYWORDS_FILE"),
		AlertPerTicker: getEnvBool("PP_ALERT_PER_TICKER", true),

		EnableSentiment: getEnvBool("PP_ENABLE_SENTIMENT", true),
		EnableRegime:    getEnvBool("PP_ENABLE_REGIME", true),
		EnableRVol:      getEnvBool("PP_ENABLE_RVOL", true),
		EnableFloat:     getEnvBool("PP_ENABLE_FLOAT", true),
		EnableOffering:  getEnvBool("PP_ENABLE_OFFERING", true),
		EnableSector:    getEnvBool("PP_ENABLE_SECTOR", true),

		CycleRegular:  getEnvSeconds("PP_CYCLE_REGULAR_SECONDS", 20),
		CycleExtended: getEnvSeconds("PP_CYCLE_EXTENDED_SECONDS", 30),
		CycleClosed:   getEnvSeconds("PP_CYCLE_CLOSED_SECONDS", 120),

		FetchTimeout: getEnvSeconds("PP_FETCH_TIMEOUT_SECONDS", 8),

		DedupRetention: getEnvDays("PP_DEDUP_RETENTION_DAYS", 14),

		CacheMaxEntries:  getEnvInt("PP_CACHE_MAX_ENTRIES", 4096),
		CacheTTLIntraday: getEnvMinutes("PP_CACHE_TTL_INTRADAY_MINUTES", 5),
		CacheTTLDaily:    getEnvMinutes("PP_CACHE_TTL_DAILY_MINUTES", 60),
		CacheWorkers:     getEnvInt("PP_CACHE_WORKERS", 10),
		RedisAddr:        os.Getenv("PP_REDIS_ADDR"),

		DispatchBurst:     getEnvInt("PP_DISPATCH_BURST", 5),
		DispatchWindow:    getEnvSeconds("PP_DISPATCH_WINDOW_SECONDS", 2),
		DispatchQueueCap:  getEnvInt("PP_DISPATCH_QUEUE_CAP", 50),
		DispatchHourlyCap: getEnvInt("PP_DISPATCH_HOURLY_CAP", 60),
		AdmissionBlock:    time.Duration(getEnvInt("PP_ADMISSION_BLOCK_MS", 500)) * time.Millisecond,

		JournalMaxBytes: int64(getEnvInt("PP_JOURNAL_MAX_BYTES", 64<<20)),
		JournalArchives: getEnvInt("PP_JOURNAL_ARCHIVES", 8),

		HeartbeatCycles: getEnvInt("PP_HEARTBEAT_CYCLES", 30),

		AnalyzerSchedule:    getEnv("PP_ANALYZER_SCHEDULE", "0 2 * * *"),
		AnalyzerLookback:    getEnvDays("PP_ANALYZER_LOOKBACK_DAYS", 30),
		MissedThreshold:     getEnvFloat("PP_MISSED_THRESHOLD", 0.10),
		TradeabilityFilter:  getEnvBool("PP_TRADEABILITY_FILTER", true),
		MinVolumeAtEntry:    getEnvFloat("PP_MIN_VOLUME_AT_ENTRY", 100_000),
		MaxSpreadPct:        getEnvFloat("PP_MAX_SPREAD_PCT", 5.0),
		MiningMinOccurrence: getEnvInt("PP_MINING_MIN_OCCURRENCES", 5),
		MiningMinLift:       getEnvFloat("PP_MINING_MIN_LIFT", 2.0),
		FDRAlpha:            getEnvFloat("PP_FDR_ALPHA", 0.05),
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	var missing []string
	if s.WebhookURL == "" {
		missing = append(missing, "PP_WEBHOOK_URL")
	}
	if s.SECUserAgent == "" {
		missing = append(missing, "PP_SEC_USER_AGENT")
	}
	if s.hasProvider("tiingo") && s.TiingoAPIKey == "" {
		missing = append(missing, "PP_TIINGO_API_KEY")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	if len(s.Providers) == 0 {
		return &ConfigError{Reason: "PP_PROVIDERS must name at least one provider"}
	}
	if s.PriceBandLower <= 0 || s.PriceBandUpper <= s.PriceBandLower {
		return &ConfigError{Reason: fmt.Sprintf("invalid price band [%.2f, %.2f]", s.PriceBandLower, s.PriceBandUpper)}
	}
	if !strings.Contains(s.SECUserAgent, "@") {
		return &ConfigError{Reason: "PP_SEC_USER_AGENT must include a contact email (SEC fair-access policy)"}
	}
	return nil
}

func (s *Settings) hasProvider(name string) bool {
	for _, p := range s.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// Path joins elem under the data directory.
func (s *Settings) Path(elem ...string) string {
	return filepath.Join(append([]string{s.DataDir}, elem...)...)
}

// HeartbeatURL returns the admin beacon destination.
func (s *Settings) HeartbeatURL() string {
	if s.AdminWebhookURL != "" {
		return s.AdminWebhookURL
	}
	return s.WebhookURL
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func getEnvMinutes(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Minute
}

func getEnvDays(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * 24 * time.Hour
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
