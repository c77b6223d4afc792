// Package journal maintains the append-only JSONL event logs. Each record is
// formatted fully before a single write+flush, so a line is either whole or
// absent; records are never rewritten.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/models"
)

const (
	// DefaultMaxBytes rotates a journal once it crosses 64 MiB.
	DefaultMaxBytes = 64 << 20
	// DefaultMaxArchives keeps this many rotated files per journal.
	DefaultMaxArchives = 8
)

// Writer appends EventRecords to one journal file with size-based rotation.
// Single-writer: one process owns a journal path.
type Writer struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	buf         *bufio.Writer
	size        int64
	maxBytes    int64
	maxArchives int
	now         func() time.Time
}

func NewWriter(path string) (*Writer, error) {
	return NewWriterWithLimits(path, DefaultMaxBytes, DefaultMaxArchives)
}

// NewWriterWithLimits opens a journal with explicit rotation limits.
// Non-positive limits fall back to the defaults.
func NewWriterWithLimits(path string, maxBytes int64, maxArchives int) (*Writer, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxArchives <= 0 {
		maxArchives = DefaultMaxArchives
	}
	w := &Writer{
		path:        path,
		maxBytes:    maxBytes,
		maxArchives: maxArchives,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("journal: stat %s: %w", w.path, err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.size = info.Size()
	return nil
}

// Append writes one record as a single line and flushes.
func (w *Writer) Append(rec models.EventRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(line)) > w.maxBytes && w.size > 0 {
		if err := w.rotate(); err != nil {
			// Rotation failure must not lose the record; keep appending to
			// the oversized file and surface the problem in logs.
			log.Error().Err(err).Str("component", "journal").Str("path", w.path).
				Msg("rotation failed")
		}
	}

	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	w.size += int64(len(line))
	return nil
}

// rotate renames the live file to a timestamped archive and reopens fresh.
func (w *Writer) rotate() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}

	archive := fmt.Sprintf("%s.%s", w.path, w.now().Format("20060102T150405"))
	if err := os.Rename(w.path, archive); err != nil {
		return err
	}
	w.pruneArchives()
	return w.open()
}

func (w *Writer) pruneArchives() {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil || len(matches) <= w.maxArchives {
		return
	}
	// Timestamped suffixes sort chronologically; drop the oldest extras.
	for _, stale := range matches[:len(matches)-w.maxArchives] {
		if err := os.Remove(stale); err != nil {
			log.Warn().Err(err).Str("component", "journal").Str("path", stale).
				Msg("archive prune failed")
		}
	}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Read loads every record in a journal file, skipping lines that fail to
// parse (a crash can leave at most one torn line; anything else is operator
// editing). A missing file reads as empty.
func Read(path string) ([]models.EventRecord, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	var records []models.EventRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.EventRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Warn().Err(err).Str("component", "journal").Str("path", path).
				Msg("skipping unparseable record")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("journal: scan %s: %w", path, err)
	}
	return records, nil
}

// ReadSince filters a journal to records published at or after cutoff.
func ReadSince(path string, cutoff time.Time) ([]models.EventRecord, error) {
	all, err := Read(path)
	if err != nil {
		return nil, err
	}
	var out []models.EventRecord
	for _, rec := range all {
		if !rec.TSPublished.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}
