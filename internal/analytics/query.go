package analytics

import (
	"sort"
	"time"

	"golang.org/x/sync/singleflight"
)

// NamedStats is one row of the per-model or per-provider breakdown.
type NamedStats struct {
	Name         string `json:"name"`
	Requests     uint64 `json:"requests"`
	SuccessCount uint64 `json:"successCount"`
	Tokens       uint64 `json:"tokens"`
}

// UsageStats is the read model served to the presentation layer.
type UsageStats struct {
	TotalRequests  uint64       `json:"totalRequests"`
	SuccessCount   uint64       `json:"successCount"`
	FailureCount   uint64       `json:"failureCount"`
	TotalTokensIn  uint64       `json:"totalTokensIn"`
	TotalTokensOut uint64       `json:"totalTokensOut"`
	TotalCostUSD   float64      `json:"totalCostUsd"`
	RequestsToday  uint64       `json:"requestsToday"`
	TokensToday    uint64       `json:"tokensToday"`
	ModelUsage     []NamedStats `json:"modelUsage"`
	ProviderUsage  []NamedStats `json:"providerUsage"`
	RequestsByDay  TimeSeries   `json:"requestsByDay"`
	TokensByDay    TimeSeries   `json:"tokensByDay"`
	RequestsByHour TimeSeries   `json:"requestsByHour"`
	TokensByHour   TimeSeries   `json:"tokensByHour"`
}

// QueryService assembles UsageStats from whatever is currently durable on
// disk. It never blocks on ingestion and never writes; readers get an
// eventually consistent snapshot.
type QueryService struct {
	aggStore  *AggregateStore
	histStore *HistoryStore
	group     singleflight.Group
	now       func() time.Time
}

// NewQueryService returns a query service over the given stores.
func NewQueryService(aggStore *AggregateStore, histStore *HistoryStore) *QueryService {
	return &QueryService{
		aggStore:  aggStore,
		histStore: histStore,
		now:       time.Now,
	}
}

// Query builds the current usage view. Concurrent callers share one
// underlying read.
func (q *QueryService) Query() UsageStats {
	v, _, _ := q.group.Do("usage", func() (any, error) {
		return q.build(), nil
	})
	return v.(UsageStats)
}

func (q *QueryService) build() UsageStats {
	agg := q.aggStore.Load()
	hist := q.histStore.Load()

	var stats UsageStats

	if agg.TotalRequests > 0 {
		stats.TotalRequests = agg.TotalRequests
		stats.SuccessCount = agg.TotalSuccessCount
		stats.FailureCount = agg.TotalFailureCount
		stats.TotalTokensIn = agg.TotalTokensIn
		stats.TotalTokensOut = agg.TotalTokensOut
		stats.TotalCostUSD = agg.TotalCostUSD
	} else if len(hist.Requests) > 0 {
		// Aggregate absent or empty while history is not: a narrow window
		// during migration. Derive totals from the window without
		// persisting anything.
		deriveTotals(&stats, hist)
	}

	today := DayLabel(q.now())
	stats.RequestsToday = agg.RequestsByDay.Value(today)
	stats.TokensToday = agg.TokensByDay.Value(today)

	stats.ModelUsage = rankBuckets(agg.ModelStats)
	stats.ProviderUsage = rankBuckets(agg.ProviderStats)

	if len(agg.RequestsByDay) > 0 {
		stats.RequestsByDay = agg.RequestsByDay.Sorted()
	} else {
		stats.RequestsByDay = seriesFromHistory(hist, DayLabel, func(RequestEvent) uint64 { return 1 })
	}
	if len(agg.TokensByDay) > 0 {
		stats.TokensByDay = agg.TokensByDay.Sorted()
	} else {
		stats.TokensByDay = seriesFromHistory(hist, DayLabel, eventTokens)
	}

	// Hour buckets are not persisted in the aggregate; they are always
	// rebuilt from the bounded window.
	stats.RequestsByHour = seriesFromHistory(hist, HourLabel, func(RequestEvent) uint64 { return 1 })
	stats.TokensByHour = seriesFromHistory(hist, HourLabel, eventTokens)

	return stats
}

func deriveTotals(stats *UsageStats, hist *History) {
	stats.TotalRequests = uint64(len(hist.Requests))
	for _, ev := range hist.Requests {
		if ev.Success() {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		stats.TotalTokensIn += uint64(maxInt64(ev.TokensIn, 0))
		stats.TotalTokensOut += uint64(maxInt64(ev.TokensOut, 0))
	}
	stats.TotalCostUSD = hist.TotalCostUSD
}

func eventTokens(ev RequestEvent) uint64 {
	return uint64(ev.TotalTokens())
}

// seriesFromHistory groups the window's events by a timestamp-derived label.
// UTC keeps rebuilt series independent of the ingestion clock's timezone.
func seriesFromHistory(hist *History, label func(time.Time) string, value func(RequestEvent) uint64) TimeSeries {
	series := TimeSeries{}
	for _, ev := range hist.Requests {
		series.Add(label(ev.Time().UTC()), value(ev))
	}
	return series.Sorted()
}

// rankBuckets flattens a bucket map into rows sorted by request count
// descending, name ascending on ties. The normalized unknown bucket is
// excluded from presentation.
func rankBuckets(m BucketMap) []NamedStats {
	rows := make([]NamedStats, 0, len(m))
	for name, b := range m {
		if name == UnknownKey {
			continue
		}
		rows = append(rows, NamedStats{
			Name:         name,
			Requests:     b.Requests,
			SuccessCount: b.SuccessCount,
			Tokens:       b.Tokens,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Requests != rows[j].Requests {
			return rows[i].Requests > rows[j].Requests
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}
