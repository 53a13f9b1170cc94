package analytics

import (
	"context"
	"sync"
	"time"

	log "github.com/skyrelay/skyrelay/internal/logging"
)

// Ingestor is the single writer for both analytics documents. It folds
// completed-request events into the in-memory aggregate and history, then
// persists each document with an independent atomic replacement. The two
// writes are not transactionally joined; a crash between them leaves one
// document one event ahead, which the query fallback absorbs until the next
// successful save.
//
// Background persistence failures are logged and swallowed so a full disk
// never stalls request processing; the in-memory state stays correct for the
// session. Clear and Reset are user actions and return their errors verbatim.
type Ingestor struct {
	mu        sync.Mutex
	aggStore  *AggregateStore
	histStore *HistoryStore
	agg       *Aggregate
	hist      *History
	seen      map[string]struct{}
	now       func() time.Time
}

// NewIngestor loads both documents and indexes the retained history window
// for duplicate detection. Run Migrate before constructing the ingestor.
func NewIngestor(aggStore *AggregateStore, histStore *HistoryStore) *Ingestor {
	in := &Ingestor{
		aggStore:  aggStore,
		histStore: histStore,
		agg:       aggStore.Load(),
		hist:      histStore.Load(),
		seen:      make(map[string]struct{}, HistoryCap),
		now:       time.Now,
	}
	for _, ev := range in.hist.Requests {
		if ev.ID != "" {
			in.seen[ev.ID] = struct{}{}
		}
	}
	return in
}

// Run consumes events until the channel closes or ctx is cancelled.
func (in *Ingestor) Run(ctx context.Context, events <-chan RequestEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			in.Record(ev)
		}
	}
}

// Record folds one event into both documents and persists them. Events whose
// id is already in the retained window are dropped; the tailer re-reads lines
// after rotation and restarts.
func (in *Ingestor) Record(ev RequestEvent) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if ev.ID != "" {
		if _, dup := in.seen[ev.ID]; dup {
			log.Debugf("analytics: skipping duplicate event %s", ev.ID)
			return
		}
		in.seen[ev.ID] = struct{}{}
	}

	Apply(in.agg, ev, in.now())
	for _, dropped := range in.hist.Push(ev) {
		delete(in.seen, dropped.ID)
	}
	in.hist.AddTokens(ev)

	if err := in.aggStore.Save(in.agg); err != nil {
		log.Warnf("analytics: persist aggregate: %v", err)
	}
	if err := in.histStore.Save(in.hist); err != nil {
		log.Warnf("analytics: persist history: %v", err)
	}
}

// Clear empties the recent-request window and persists the result. The
// aggregate and the history's cumulative fields are untouched.
func (in *Ingestor) Clear() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.hist.Clear()
	in.seen = make(map[string]struct{}, HistoryCap)
	return in.histStore.Save(in.hist)
}

// Reset deletes the persisted aggregate and replaces the in-memory one with
// fresh defaults. Deleting rather than zeroing means the next save records a
// new creation timestamp. History is unaffected.
func (in *Ingestor) Reset() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.aggStore.Delete(); err != nil {
		return err
	}
	in.agg = NewAggregate(in.now())
	return nil
}

// HistorySnapshot returns a copy of the current in-memory window, for export.
func (in *Ingestor) HistorySnapshot() *History {
	in.mu.Lock()
	defer in.mu.Unlock()

	snap := &History{
		Requests:       make([]RequestEvent, len(in.hist.Requests)),
		TotalTokensIn:  in.hist.TotalTokensIn,
		TotalTokensOut: in.hist.TotalTokensOut,
		TotalCostUSD:   in.hist.TotalCostUSD,
	}
	copy(snap.Requests, in.hist.Requests)
	return snap
}
