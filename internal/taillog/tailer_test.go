package taillog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skyrelay/skyrelay/internal/analytics"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want analytics.RequestEvent
		ok   bool
	}{
		{
			name: "complete record",
			line: `{"id":"req-1","timestamp":1767139200000,"provider":"openai","model":"gpt-4o","method":"POST","path":"/v1/chat/completions","status":200,"durationMs":840,"tokensIn":120,"tokensOut":64}`,
			want: analytics.RequestEvent{
				ID: "req-1", Timestamp: 1767139200000, Provider: "openai",
				Model: "gpt-4o", Method: "POST", Path: "/v1/chat/completions",
				Status: 200, DurationMs: 840, TokensIn: 120, TokensOut: 64,
			},
			ok: true,
		},
		{
			name: "missing optional fields default",
			line: `{"timestamp":1767139200000,"status":500}`,
			want: analytics.RequestEvent{Timestamp: 1767139200000, Status: 500},
			ok:   true,
		},
		{name: "empty line", line: "", ok: false},
		{name: "not json", line: "plain text log line", ok: false},
		{name: "json without status", line: `{"timestamp":123}`, ok: false},
		{name: "json without timestamp", line: `{"status":200}`, ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLine(tc.line)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if tc.want.ID != "" && got.ID != tc.want.ID {
				t.Errorf("id = %q, want %q", got.ID, tc.want.ID)
			}
			if got.ID == "" {
				t.Error("parsed events must always carry an id")
			}
			if got.Timestamp != tc.want.Timestamp || got.Status != tc.want.Status {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
			if got.TokensIn != tc.want.TokensIn || got.TokensOut != tc.want.TokensOut {
				t.Errorf("tokens = %d/%d, want %d/%d",
					got.TokensIn, got.TokensOut, tc.want.TokensIn, tc.want.TokensOut)
			}
		})
	}
}

func TestParseLineGeneratesID(t *testing.T) {
	a, _ := ParseLine(`{"timestamp":1,"status":200}`)
	b, _ := ParseLine(`{"timestamp":1,"status":200}`)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("generated ids must be unique, got %q and %q", a.ID, b.ID)
	}
}

func TestTailerPicksUpAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requests.log")

	// Pre-existing content must be skipped; it is already in history.
	if err := os.WriteFile(path, []byte(`{"id":"old","timestamp":1,"status":200}`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tailer := NewTailer(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tailer.Run(ctx)
	}()

	// Give the watcher a moment to attach before appending.
	time.Sleep(100 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(f, `{"id":"new-%d","timestamp":%d,"status":200}`+"\n", i, i+2)
	}
	f.Close()

	var got []analytics.RequestEvent
	deadline := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-tailer.Events():
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out, received %d events: %+v", len(got), got)
		}
	}

	for i, ev := range got {
		want := fmt.Sprintf("new-%d", i)
		if ev.ID != want {
			t.Errorf("event %d has id %s, want %s", i, ev.ID, want)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tailer did not stop on cancellation")
	}
}

func TestTailerStopsWhileEventBufferIsFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requests.log")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	tailer := NewTailer(path)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tailer.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	// Nobody reads Events, so the tailer fills its buffer and blocks on the
	// next send. Cancellation must still bring Run down.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2*cap(tailer.events); i++ {
		fmt.Fprintf(f, `{"id":"e-%d","timestamp":%d,"status":200}`+"\n", i, i+1)
	}
	f.Close()

	deadline := time.After(5 * time.Second)
	for len(tailer.events) < cap(tailer.events) {
		select {
		case <-deadline:
			t.Fatalf("tailer never filled its buffer, holding %d events", len(tailer.events))
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tailer hung on a full events channel after cancellation")
	}
}

func TestTailerHandlesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requests.log")
	if err := os.WriteFile(path, []byte(`{"id":"old","timestamp":1,"status":200}`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tailer := NewTailer(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tailer.Run(ctx)

	time.Sleep(100 * time.Millisecond)

	// Rotate in place: truncate, then write fresh content.
	if err := os.WriteFile(path, []byte(`{"id":"fresh","timestamp":2,"status":200}`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-tailer.Events():
		if ev.ID != "fresh" {
			t.Errorf("expected the post-truncation event, got %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for post-truncation event")
	}
}
