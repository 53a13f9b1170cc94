package analytics

import "time"

// Apply folds one completed request into agg. The day bucket is keyed by the
// caller-supplied clock, not the event timestamp: live ingestion passes the
// current wall-clock time, while migration backfill passes each event's own
// timestamp. The two deliberately differ; see the migration notes.
func Apply(agg *Aggregate, ev RequestEvent, now time.Time) {
	agg.TotalRequests++
	if ev.Success() {
		agg.TotalSuccessCount++
	} else {
		agg.TotalFailureCount++
	}

	tokensIn := maxInt64(ev.TokensIn, 0)
	tokensOut := maxInt64(ev.TokensOut, 0)
	agg.TotalTokensIn += uint64(tokensIn)
	agg.TotalTokensOut += uint64(tokensOut)

	day := DayLabel(now)
	agg.RequestsByDay.Add(day, 1)
	agg.TokensByDay.Add(day, uint64(tokensIn+tokensOut))

	agg.ModelStats.Upsert(ev.Model, ev.Success(), ev.TotalTokens())
	agg.ProviderStats.Upsert(ev.Provider, ev.Success(), ev.TotalTokens())
}
