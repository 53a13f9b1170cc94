package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skyrelay/skyrelay/internal/json"
	log "github.com/skyrelay/skyrelay/internal/logging"
)

const (
	aggregateFileName = "aggregate.json"
	historyFileName   = "history.json"
	tempSuffix        = ".tmp"
)

// writeFileAtomic writes data to a temporary file beside path and renames it
// over the target. A crash mid-save leaves at worst an orphaned temp file;
// the previous document is never half-overwritten. Both stores persist
// through this single primitive.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("analytics: create directory for %s: %w", filepath.Base(path), err)
	}
	tmp := path + tempSuffix
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("analytics: write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("analytics: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// loadDocument reads and decodes path into v. It reports false when the file
// is missing and logs a warning when it is unreadable or corrupt; callers
// substitute defaults in both cases.
func loadDocument(path string, v any) bool {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		log.Warnf("analytics: read %s: %v, using defaults", filepath.Base(path), err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warnf("analytics: parse %s: %v, using defaults", filepath.Base(path), err)
		return false
	}
	return true
}

// AggregateStore persists the cumulative aggregate document.
type AggregateStore struct {
	path string
}

// NewAggregateStore returns a store rooted at the given data directory.
func NewAggregateStore(dir string) *AggregateStore {
	return &AggregateStore{path: filepath.Join(dir, aggregateFileName)}
}

// Path returns the backing file path.
func (s *AggregateStore) Path() string { return s.path }

// Exists reports whether an aggregate document has ever been written.
func (s *AggregateStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the persisted aggregate, or a fresh default when the file is
// missing or corrupt. Load never fails to the caller. The document is decoded
// into a scratch value so a decode error part-way through a corrupt file
// cannot leak fields into the returned default.
func (s *AggregateStore) Load() *Aggregate {
	var decoded Aggregate
	if loadDocument(s.path, &decoded) {
		decoded.normalize()
		return &decoded
	}
	return NewAggregate(time.Now())
}

// Save atomically replaces the persisted aggregate.
func (s *AggregateStore) Save(agg *Aggregate) error {
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return fmt.Errorf("analytics: encode aggregate: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// Delete removes the persisted aggregate. A missing file is not an error;
// the next save records a fresh creation timestamp.
func (s *AggregateStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("analytics: delete %s: %w", aggregateFileName, err)
	}
	return nil
}

// HistoryStore persists the bounded recent-request document.
type HistoryStore struct {
	path string
}

// NewHistoryStore returns a store rooted at the given data directory.
func NewHistoryStore(dir string) *HistoryStore {
	return &HistoryStore{path: filepath.Join(dir, historyFileName)}
}

// Path returns the backing file path.
func (s *HistoryStore) Path() string { return s.path }

// Load returns the persisted history, or an empty default when the file is
// missing or corrupt. Load never fails to the caller. As with the aggregate,
// decoding targets a scratch value so corrupt files cannot bleed partial
// state into the default.
func (s *HistoryStore) Load() *History {
	var decoded History
	if loadDocument(s.path, &decoded) {
		if decoded.Requests == nil {
			decoded.Requests = []RequestEvent{}
		}
		return &decoded
	}
	return NewHistory()
}

// Save atomically replaces the persisted history.
func (s *HistoryStore) Save(h *History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("analytics: encode history: %w", err)
	}
	return writeFileAtomic(s.path, data)
}
