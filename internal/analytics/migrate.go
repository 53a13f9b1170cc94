package analytics

import (
	"time"

	log "github.com/skyrelay/skyrelay/internal/logging"
)

// Migrate upgrades the legacy single-file layout by building an aggregate
// from the existing history. It runs once at startup, before any event is
// ingested, and only acts while no aggregate document exists on disk:
//
//   - aggregate present: nothing to do, whether written by a previous
//     migration or by organic use.
//   - history empty: the aggregate stays absent; the first ingested event
//     creates it on demand with fresh defaults.
//   - otherwise: replay every history entry through the same fold a live
//     event takes, bucketing each by its own timestamp ("today" is
//     meaningless for backfill), then persist.
//
// A failed persist is logged and left alone; the aggregate file is still
// absent afterward, so the next startup simply tries again.
func Migrate(aggStore *AggregateStore, histStore *HistoryStore) {
	if aggStore.Exists() {
		return
	}
	h := histStore.Load()
	if len(h.Requests) == 0 {
		return
	}

	agg := NewAggregate(time.Now())
	for _, ev := range h.Requests {
		Apply(agg, ev, ev.Time())
	}

	// The legacy cumulative fields may cover requests that have already
	// rotated out of the bounded window; prefer them when the replay
	// produced nothing.
	if agg.TotalTokensIn == 0 && h.TotalTokensIn > 0 {
		agg.TotalTokensIn = uint64(h.TotalTokensIn)
	}
	if agg.TotalTokensOut == 0 && h.TotalTokensOut > 0 {
		agg.TotalTokensOut = uint64(h.TotalTokensOut)
	}
	if agg.TotalCostUSD == 0 && h.TotalCostUSD > 0 {
		agg.TotalCostUSD = h.TotalCostUSD
	}

	agg.RequestsByDay = agg.RequestsByDay.Sorted()
	agg.TokensByDay = agg.TokensByDay.Sorted()

	if err := aggStore.Save(agg); err != nil {
		log.Warnf("analytics: migration could not persist aggregate, will retry next start: %v", err)
		return
	}
	log.Infof("analytics: migrated %d historical requests into aggregate", len(h.Requests))
}
