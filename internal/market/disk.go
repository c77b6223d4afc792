package market

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pennypulse/pennypulse/internal/models"
)

// diskCache is the cold tier: one msgpack file per query, content-addressed by
// the SHA-256 of the query key so paths never need escaping.
type diskCache struct {
	dir string
}

type diskEntry struct {
	Key       string       `msgpack:"key"`
	FetchedAt time.Time    `msgpack:"fetched_at"`
	TTL       time.Duration `msgpack:"ttl"`
	Bars      []models.Bar `msgpack:"bars"`
}

func newDiskCache(dir string) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("market: create cache dir: %w", err)
	}
	return &diskCache{dir: dir}, nil
}

func (d *diskCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	// Two-level fanout keeps directories small under heavy prefetch.
	return filepath.Join(d.dir, name[:2], name+".msgpack")
}

// Get returns cached bars when present and unexpired. A corrupt or unreadable
// file counts as a miss; the fetch path will rewrite it.
func (d *diskCache) Get(key string, now time.Time) ([]models.Bar, bool) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return nil, false
	}

	var entry diskEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(d.path(key))
		return nil, false
	}
	if entry.Key != key || now.After(entry.FetchedAt.Add(entry.TTL)) {
		return nil, false
	}
	return entry.Bars, true
}

// Put writes the entry via a temp file and rename so readers never observe a
// partial record.
func (d *diskCache) Put(key string, bars []models.Bar, ttl time.Duration, now time.Time) error {
	path := d.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("market: cache fanout dir: %w", err)
	}

	data, err := msgpack.Marshal(diskEntry{
		Key:       key,
		FetchedAt: now,
		TTL:       ttl,
		Bars:      bars,
	})
	if err != nil {
		return fmt.Errorf("market: encode cache entry: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("market: write cache entry: %w", err)
	}
	return os.Rename(tmp, path)
}
