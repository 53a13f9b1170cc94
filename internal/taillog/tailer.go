// Package taillog follows the proxy's request log and turns each completed
// line into a discrete analytics event. It is the bridge between the proxy
// process and the analytics ingestor.
package taillog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/skyrelay/skyrelay/internal/analytics"
	log "github.com/skyrelay/skyrelay/internal/logging"
)

// Tailer follows a JSON-lines request log from its current end. Lines that
// predate startup are already reflected in the persisted history, so only
// growth is consumed.
type Tailer struct {
	path   string
	events chan analytics.RequestEvent
	offset int64
}

// NewTailer returns a tailer for the log at path.
func NewTailer(path string) *Tailer {
	return &Tailer{
		path:   path,
		events: make(chan analytics.RequestEvent, 256),
	}
}

// Events returns the channel of parsed request events. It is closed when
// Run returns.
func (t *Tailer) Events() <-chan analytics.RequestEvent { return t.events }

// Run watches the log until ctx is cancelled. The log file may not exist
// yet; it is picked up on creation. Truncation (rotation in place) resets
// the read offset.
func (t *Tailer) Run(ctx context.Context) error {
	defer close(t.events)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("taillog: create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(t.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("taillog: watch %s: %w", dir, err)
	}

	// Start from the current end; persisted history already covers the past.
	if info, err := os.Stat(t.path); err == nil {
		t.offset = info.Size()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(t.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				t.drain(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("taillog: watcher error: %v", err)
		}
	}
}

// drain reads any new complete lines past the current offset. It stops early
// when ctx is cancelled so a full events channel with no consumer left cannot
// block shutdown.
func (t *Tailer) drain(ctx context.Context) {
	f, err := os.Open(t.path)
	if err != nil {
		log.Warnf("taillog: open %s: %v", t.path, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Warnf("taillog: stat %s: %v", t.path, err)
		return
	}
	if info.Size() < t.offset {
		// Truncated in place; start over.
		t.offset = 0
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		log.Warnf("taillog: seek %s: %v", t.path, err)
		return
	}

	reader := bufio.NewReader(f)
	for {
		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			if chunk[len(chunk)-1] != '\n' {
				// Partial line; re-read it after the next write event.
				break
			}
			if !t.emit(ctx, strings.TrimRight(string(chunk), "\r\n")) {
				return
			}
			t.offset += int64(len(chunk))
		}
		if err != nil {
			break
		}
	}
}

// emit parses and delivers one line. It reports false when ctx is cancelled
// before the event could be handed off.
func (t *Tailer) emit(ctx context.Context, line string) bool {
	ev, ok := ParseLine(line)
	if !ok {
		return true
	}
	select {
	case t.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// ParseLine decodes one request-log line into an event. Parsing is tolerant:
// unknown fields are ignored and missing optional fields default. Lines
// without a timestamp or status are not request records and are skipped.
func ParseLine(line string) (analytics.RequestEvent, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !gjson.Valid(line) {
		return analytics.RequestEvent{}, false
	}
	parsed := gjson.Parse(line)
	ts := parsed.Get("timestamp")
	status := parsed.Get("status")
	if !ts.Exists() || !status.Exists() {
		return analytics.RequestEvent{}, false
	}

	ev := analytics.RequestEvent{
		ID:         parsed.Get("id").String(),
		Timestamp:  ts.Int(),
		Provider:   parsed.Get("provider").String(),
		Model:      parsed.Get("model").String(),
		Method:     parsed.Get("method").String(),
		Path:       parsed.Get("path").String(),
		Status:     int(status.Int()),
		DurationMs: parsed.Get("durationMs").Int(),
		TokensIn:   parsed.Get("tokensIn").Int(),
		TokensOut:  parsed.Get("tokensOut").Int(),
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	return ev, true
}
