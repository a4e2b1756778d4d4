// Package ledger records which artifact fingerprints have completed the full
// pipeline. It is the deduplication authority: presence of a fingerprint means
// a prior run succeeded end to end, absence is the sole trigger to process.
package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrClosed is returned when committing to a closed ledger.
var ErrClosed = errors.New("ledger is closed")

// Entry is one committed ledger record. Entries are only ever created after
// an artifact's entire pipeline (transcribe, classify, publish) succeeded.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Status      string    `json:"status"`
	ExternalRef string    `json:"external_ref,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Ledger is the durable set of completed fingerprints.
//
// Commit must be idempotent for a repeated fingerprint and safe under
// concurrent callers; a concurrent commit of the same fingerprint is a no-op,
// not an error.
type Ledger interface {
	Exists(fingerprint string) bool
	Commit(ctx context.Context, fingerprint, externalRef string) error
	Len() int
	Close() error
}

// fileLedger persists entries as an append-only JSONL log. Each commit is a
// single O_APPEND write of one line, so concurrent writers (including other
// processes sharing the file) never interleave partial entries; readers load
// the whole log at open and skip any torn trailing line.
type fileLedger struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	entries map[string]Entry
	closed  bool
}

// Open loads (or creates) a file-backed ledger at path.
func Open(path string) (Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	entries, err := loadEntries(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	return &fileLedger{
		path:    path,
		file:    file,
		entries: entries,
	}, nil
}

func loadEntries(path string) (map[string]Entry, error) {
	entries := make(map[string]Entry)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// A torn final line from a killed writer is not corruption of
			// prior entries; ignore it and let the artifact reprocess.
			continue
		}
		if e.Fingerprint != "" {
			entries[e.Fingerprint] = e
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger %s: %w", path, err)
	}

	return entries, nil
}

func (l *fileLedger) Exists(fingerprint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[fingerprint]
	return ok
}

func (l *fileLedger) Commit(ctx context.Context, fingerprint, externalRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if _, ok := l.entries[fingerprint]; ok {
		return nil
	}

	entry := Entry{
		Fingerprint: fingerprint,
		Status:      "done",
		ExternalRef: externalRef,
		CompletedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}

	l.entries[fingerprint] = entry
	return nil
}

func (l *fileLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *fileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// memLedger is an in-memory ledger for tests and side-effect-free previews.
type memLedger struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMem creates an in-memory ledger.
func NewMem() Ledger {
	return &memLedger{entries: make(map[string]Entry)}
}

func (l *memLedger) Exists(fingerprint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[fingerprint]
	return ok
}

func (l *memLedger) Commit(ctx context.Context, fingerprint, externalRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[fingerprint]; ok {
		return nil
	}
	l.entries[fingerprint] = Entry{
		Fingerprint: fingerprint,
		Status:      "done",
		ExternalRef: externalRef,
		CompletedAt: time.Now().UTC(),
	}
	return nil
}

func (l *memLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *memLedger) Close() error { return nil }
