package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennypulse/pennypulse/internal/models"
)

func record(id string, published time.Time) models.EventRecord {
	return models.EventRecord{
		TSPublished: published,
		TSObserved:  published.Add(time.Minute),
		SourceID:    "sec_8k",
		CanonicalID: id,
		Tickers:     []string{"XYZ"},
		Title:       "FDA approval for lead drug",
		Cls:         models.Classification{SourceWeight: 0.61, LastPrice: 3.20},
		Schema:      models.SchemaV1,
	}
}

func TestAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)

	ts := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	require.NoError(t, w.Append(record("a", ts)))
	require.NoError(t, w.Append(record("b", ts.Add(time.Minute))))
	require.NoError(t, w.Close())

	records, err := Read(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].CanonicalID)
	assert.Equal(t, "v1", records[0].Schema)
	assert.Equal(t, 0.61, records[0].Cls.SourceWeight)
}

func TestAppendSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	ts := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(record("a", ts)))
	require.NoError(t, w.Close())

	w, err = NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(record("b", ts)))
	require.NoError(t, w.Close())

	records, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestReadMissingFileIsEmpty(t *testing.T) {
	records, err := Read(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadSkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	ts := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(record("a", ts)))
	require.NoError(t, w.Close())

	// Simulate a crash mid-append.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	f.WriteString(`{"ts_published":"2026-08-24T1`)
	f.Close()

	records, err := Read(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].CanonicalID)
}

func TestReadSince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rejected_items.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)

	old := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Append(record("old", old)))
	require.NoError(t, w.Append(record("recent", recent)))
	require.NoError(t, w.Close())

	records, err := ReadSince(path, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "recent", records[0].CanonicalID)
}

func TestRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)
	w.maxBytes = 600 // a few records per file
	w.maxArchives = 2

	stamp := 0
	w.now = func() time.Time {
		stamp++
		return time.Date(2026, 8, 24, 14, 0, stamp, 0, time.UTC)
	}

	ts := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		require.NoError(t, w.Append(record("r", ts)))
	}
	require.NoError(t, w.Close())

	archives, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, archives, 2, "old archives pruned")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(700))
}
