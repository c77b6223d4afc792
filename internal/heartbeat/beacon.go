package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Beacon posts a metrics summary to the admin webhook every EveryCycles
// completed cycles. Best effort: failures are logged and swallowed.
type Beacon struct {
	url         string
	everyCycles int
	client      *http.Client
	metrics     *Metrics
	startedAt   time.Time
}

func NewBeacon(url string, everyCycles int, metrics *Metrics) *Beacon {
	if everyCycles <= 0 {
		everyCycles = 30
	}
	return &Beacon{
		url:         url,
		everyCycles: everyCycles,
		client:      &http.Client{Timeout: 5 * time.Second},
		metrics:     metrics,
		startedAt:   time.Now().UTC(),
	}
}

type beaconPayload struct {
	Uptime        string   `json:"uptime"`
	ItemsPerCycle float64  `json:"items_per_cycle_mean"`
	Snapshot
}

// MaybeSend fires on the configured cycle multiples.
func (b *Beacon) MaybeSend(ctx context.Context, cycle int) {
	if b.url == "" || cycle == 0 || cycle%b.everyCycles != 0 {
		return
	}
	if err := b.send(ctx); err != nil {
		log.Warn().Err(err).Str("component", "heartbeat").Msg("beacon failed")
	}
}

func (b *Beacon) send(ctx context.Context) error {
	snap := b.metrics.Snapshot()
	payload := beaconPayload{
		Uptime:   time.Since(b.startedAt).Round(time.Second).String(),
		Snapshot: snap,
	}
	if snap.Cycles > 0 {
		payload.ItemsPerCycle = float64(snap.Items) / float64(snap.Cycles)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat: status %d", resp.StatusCode)
	}
	return nil
}
