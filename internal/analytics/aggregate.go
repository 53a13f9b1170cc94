package analytics

import (
	"sort"
	"strings"
	"time"
)

// UnknownKey is the normalized bucket for events with no usable model or
// provider name.
const UnknownKey = "unknown"

// TimeSeriesPoint is one bucket of a calendar time series. Label is a
// day-level ("2006-01-02") or hour-level ("2006-01-02 15:00") key, unique
// within its series.
type TimeSeriesPoint struct {
	Label string `json:"label"`
	Value uint64 `json:"value"`
}

// TimeSeries is a set of points with unique labels. Insertion order is not
// significant; readers sort ascending by label.
type TimeSeries []TimeSeriesPoint

// Add upserts delta into the point with the given label.
func (s *TimeSeries) Add(label string, delta uint64) {
	for i := range *s {
		if (*s)[i].Label == label {
			(*s)[i].Value += delta
			return
		}
	}
	*s = append(*s, TimeSeriesPoint{Label: label, Value: delta})
}

// Value returns the value at label, or 0 when the label is absent.
func (s TimeSeries) Value(label string) uint64 {
	for i := range s {
		if s[i].Label == label {
			return s[i].Value
		}
	}
	return 0
}

// Sorted returns a copy ordered ascending by label. Calendar labels sort
// chronologically as plain strings.
func (s TimeSeries) Sorted() TimeSeries {
	out := make(TimeSeries, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// BucketStats is the per-name counter triple used by both the model and the
// provider breakdowns.
type BucketStats struct {
	Requests     uint64 `json:"requests"`
	SuccessCount uint64 `json:"successCount"`
	Tokens       uint64 `json:"tokens"`
}

// BucketMap keys BucketStats by a normalized model or provider name.
type BucketMap map[string]BucketStats

// Upsert folds one request outcome into the bucket for name. Empty and
// sentinel names collapse into the UnknownKey bucket.
func (m BucketMap) Upsert(name string, success bool, tokens int64) {
	key := NormalizeName(name)
	b := m[key]
	b.Requests++
	if success {
		b.SuccessCount++
	}
	if tokens > 0 {
		b.Tokens += uint64(tokens)
	}
	m[key] = b
}

// NormalizeName maps empty or sentinel names to UnknownKey.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, UnknownKey) {
		return UnknownKey
	}
	return name
}

// Aggregate is the persisted cumulative analytics document (aggregate.json).
// It is never trimmed; per-day series and per-name buckets grow with use.
// Invariant: TotalRequests == TotalSuccessCount + TotalFailureCount.
type Aggregate struct {
	CreatedAt         int64      `json:"createdAt"` // epoch milliseconds
	TotalRequests     uint64     `json:"totalRequests"`
	TotalSuccessCount uint64     `json:"totalSuccessCount"`
	TotalFailureCount uint64     `json:"totalFailureCount"`
	TotalTokensIn     uint64     `json:"totalTokensIn"`
	TotalTokensOut    uint64     `json:"totalTokensOut"`
	TotalCostUSD      float64    `json:"totalCostUsd"`
	RequestsByDay     TimeSeries `json:"requestsByDay"`
	TokensByDay       TimeSeries `json:"tokensByDay"`
	ModelStats        BucketMap  `json:"modelStats"`
	ProviderStats     BucketMap  `json:"providerStats"`
}

// NewAggregate returns a fresh aggregate stamped with the given creation time.
func NewAggregate(now time.Time) *Aggregate {
	return &Aggregate{
		CreatedAt:     now.UnixMilli(),
		RequestsByDay: TimeSeries{},
		TokensByDay:   TimeSeries{},
		ModelStats:    BucketMap{},
		ProviderStats: BucketMap{},
	}
}

// normalize repairs nil collections after decoding a hand-written or partial
// document. Missing fields default rather than reject.
func (a *Aggregate) normalize() {
	if a.RequestsByDay == nil {
		a.RequestsByDay = TimeSeries{}
	}
	if a.TokensByDay == nil {
		a.TokensByDay = TimeSeries{}
	}
	if a.ModelStats == nil {
		a.ModelStats = BucketMap{}
	}
	if a.ProviderStats == nil {
		a.ProviderStats = BucketMap{}
	}
}

// DayLabel formats t as a calendar-day series label.
func DayLabel(t time.Time) string { return t.Format("2006-01-02") }

// HourLabel formats t as an hour-precision series label.
func HourLabel(t time.Time) string { return t.Format("2006-01-02 15:00") }
