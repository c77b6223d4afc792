// Package dispatch delivers accepted items to the alert webhook behind a
// token bucket, a global hourly cap, and a bounded drop-oldest queue.
// Admission and dispatch are decoupled: an item dropped here was still
// accepted and journaled.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/pennypulse/pennypulse/internal/models"
)

// Config holds the delivery limits.
type Config struct {
	WebhookURL   string
	QueueCap     int           // pending buffer; overflow drops the oldest
	BucketSize   int           // alerts per window
	BucketWindow time.Duration // token refill window
	HourlyCap    int           // global ceiling, 0 disables
	MaxAttempts  int
	Backoff      time.Duration // initial retry backoff, doubles per attempt
	// AdmissionBlock bounds how long a full-queue Enqueue waits for the
	// drain loop to free a slot before evicting the oldest item. Zero
	// drops immediately.
	AdmissionBlock time.Duration
	PerTicker      bool // expand multi-ticker items into one alert each
}

func DefaultConfig(webhookURL string) Config {
	return Config{
		WebhookURL:     webhookURL,
		QueueCap:       50,
		BucketSize:     5,
		BucketWindow:   2 * time.Second,
		HourlyCap:      60,
		MaxAttempts:    3,
		Backoff:        500 * time.Millisecond,
		AdmissionBlock: 500 * time.Millisecond,
	}
}

// Hooks are optional observers; nil members are skipped.
type Hooks struct {
	Delivered func(models.ScoredItem)
	Dropped   func(models.ScoredItem)
	Failed    func(models.ScoredItem)
}

// Dispatcher owns the pending queue and the delivery loop.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	bucket *rate.Limiter
	hooks  Hooks

	mu      sync.Mutex
	pending []models.ScoredItem
	notify  chan struct{}
	space   chan struct{}

	hourStart time.Time
	hourCount int

	now func() time.Time
}

func New(cfg Config, hooks Hooks) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	interval := cfg.BucketWindow / time.Duration(cfg.BucketSize)
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		bucket: rate.NewLimiter(rate.Every(interval), cfg.BucketSize),
		hooks:  hooks,
		notify: make(chan struct{}, 1),
		space:  make(chan struct{}, 1),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue buffers items for delivery, expanding per ticker when configured.
// Expanded alerts share the item's dedup key, so re-observing the filing
// still dedups. A full queue blocks admission for at most AdmissionBlock
// waiting for the drain loop; past that the oldest pending item is evicted
// and recorded as dispatch_dropped.
func (d *Dispatcher) Enqueue(items ...models.ScoredItem) {
	for _, item := range items {
		for _, alert := range d.expand(item) {
			d.admit(alert)
		}
	}
}

func (d *Dispatcher) admit(alert models.ScoredItem) {
	d.mu.Lock()
	if len(d.pending) >= d.cfg.QueueCap && d.cfg.AdmissionBlock > 0 {
		d.mu.Unlock()
		// Discard any signal from pops that predate this wait.
		select {
		case <-d.space:
		default:
		}
		d.wake()
		d.awaitSpace(d.cfg.AdmissionBlock)
		d.mu.Lock()
	}
	if len(d.pending) >= d.cfg.QueueCap {
		dropped := d.pending[0]
		d.pending = d.pending[1:]
		log.Warn().Str("component", "dispatch").
			Str("item", dropped.DedupKey()).
			Msg("dispatch_dropped: queue overflow")
		if d.hooks.Dropped != nil {
			d.hooks.Dropped(dropped)
		}
	}
	d.pending = append(d.pending, alert)
	d.mu.Unlock()
	d.wake()
}

func (d *Dispatcher) wake() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// awaitSpace waits for pop to free a slot, bounded by limit.
func (d *Dispatcher) awaitSpace(limit time.Duration) {
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-d.space:
	case <-timer.C:
	}
}

func (d *Dispatcher) expand(item models.ScoredItem) []models.ScoredItem {
	if !d.cfg.PerTicker || len(item.Tickers) <= 1 {
		return []models.ScoredItem{item}
	}
	out := make([]models.ScoredItem, 0, len(item.Tickers))
	for _, t := range item.Tickers {
		alert := item
		alert.Tickers = []string{t}
		out = append(out, alert)
	}
	return out
}

// QueueLen reports the pending depth.
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		item, ok := d.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-d.notify:
				continue
			}
		}

		if err := d.bucket.Wait(ctx); err != nil {
			return
		}
		if !d.underHourlyCap() {
			log.Warn().Str("component", "dispatch").
				Str("item", item.DedupKey()).
				Msg("dispatch_dropped: hourly cap reached")
			if d.hooks.Dropped != nil {
				d.hooks.Dropped(item)
			}
			continue
		}

		if err := d.deliver(ctx, item); err != nil {
			log.Error().Err(err).Str("component", "dispatch").
				Str("item", item.DedupKey()).Msg("delivery failed")
			if d.hooks.Failed != nil {
				d.hooks.Failed(item)
			}
			continue
		}
		if d.hooks.Delivered != nil {
			d.hooks.Delivered(item)
		}
	}
}

func (d *Dispatcher) pop() (models.ScoredItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return models.ScoredItem{}, false
	}
	item := d.pending[0]
	d.pending = d.pending[1:]
	select {
	case d.space <- struct{}{}:
	default:
	}
	return item, true
}

func (d *Dispatcher) underHourlyCap() bool {
	if d.cfg.HourlyCap <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if now.Sub(d.hourStart) >= time.Hour {
		d.hourStart = now
		d.hourCount = 0
	}
	if d.hourCount >= d.cfg.HourlyCap {
		return false
	}
	d.hourCount++
	return true
}

// permanentError marks HTTP outcomes that retrying cannot fix.
type permanentError struct{ status int }

func (e permanentError) Error() string {
	return fmt.Sprintf("dispatch: webhook status %d", e.status)
}

// deliver POSTs one alert with exponential backoff on transient failures.
// Retry-After on a 429 overrides the backoff; 4xx other than 429 is terminal.
func (d *Dispatcher) deliver(ctx context.Context, item models.ScoredItem) error {
	body, err := json.Marshal(RenderPayload(item))
	if err != nil {
		return fmt.Errorf("dispatch: render: %w", err)
	}

	backoff := d.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		wait, err := d.post(ctx, body)
		if err == nil {
			return nil
		}
		if _, perm := err.(permanentError); perm {
			return err
		}
		lastErr = err

		if attempt == d.cfg.MaxAttempts {
			break
		}
		delay := backoff
		if wait > 0 {
			delay = wait
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		backoff *= 2
	}
	return fmt.Errorf("dispatch: %d attempts exhausted: %w", d.cfg.MaxAttempts, lastErr)
}

// post performs one webhook attempt. The returned duration is a server-
// requested Retry-After, zero when absent.
func (d *Dispatcher) post(ctx context.Context, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dispatch: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return retryAfter(resp), fmt.Errorf("dispatch: rate limited (429)")
	case resp.StatusCode >= 500:
		return 0, fmt.Errorf("dispatch: server error %d", resp.StatusCode)
	default:
		return 0, permanentError{status: resp.StatusCode}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
