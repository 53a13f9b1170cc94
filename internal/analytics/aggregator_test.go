package analytics

import (
	"testing"
	"time"
)

func testEvent(id string, status int, tokensIn, tokensOut int64) RequestEvent {
	return RequestEvent{
		ID:         id,
		Timestamp:  time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC).UnixMilli(),
		Provider:   "openai",
		Model:      "gpt-4o",
		Method:     "POST",
		Path:       "/v1/chat/completions",
		Status:     status,
		DurationMs: 1200,
		TokensIn:   tokensIn,
		TokensOut:  tokensOut,
	}
}

func TestApplyCountingInvariant(t *testing.T) {
	agg := NewAggregate(time.Now())
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	statuses := []int{200, 201, 400, 404, 500, 302, 200}
	for i, status := range statuses {
		ev := testEvent("", status, 1, 1)
		ev.ID = string(rune('a' + i))
		Apply(agg, ev, now)
	}

	if agg.TotalRequests != uint64(len(statuses)) {
		t.Errorf("expected %d total requests, got %d", len(statuses), agg.TotalRequests)
	}
	if agg.TotalSuccessCount+agg.TotalFailureCount != agg.TotalRequests {
		t.Errorf("success+failure = %d, want %d",
			agg.TotalSuccessCount+agg.TotalFailureCount, agg.TotalRequests)
	}
	if agg.TotalSuccessCount != 4 {
		t.Errorf("expected 4 successes, got %d", agg.TotalSuccessCount)
	}
	if agg.TotalFailureCount != 3 {
		t.Errorf("expected 3 failures, got %d", agg.TotalFailureCount)
	}
}

func TestApplySameDayScenario(t *testing.T) {
	agg := NewAggregate(time.Now())
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)

	Apply(agg, testEvent("a", 200, 10, 5), now)
	Apply(agg, testEvent("b", 200, 20, 10), now)
	Apply(agg, testEvent("c", 500, 0, 0), now)

	if agg.TotalRequests != 3 {
		t.Errorf("expected 3 requests, got %d", agg.TotalRequests)
	}
	if agg.TotalSuccessCount != 2 || agg.TotalFailureCount != 1 {
		t.Errorf("expected 2/1 success/failure, got %d/%d",
			agg.TotalSuccessCount, agg.TotalFailureCount)
	}
	if len(agg.RequestsByDay) != 1 {
		t.Fatalf("expected a single day point, got %d", len(agg.RequestsByDay))
	}
	day := DayLabel(now)
	if got := agg.RequestsByDay.Value(day); got != 3 {
		t.Errorf("requestsByDay[%s] = %d, want 3", day, got)
	}
	if got := agg.TokensByDay.Value(day); got != 45 {
		t.Errorf("tokensByDay[%s] = %d, want 45", day, got)
	}
}

func TestApplyDayBucketFollowsClockNotEvent(t *testing.T) {
	agg := NewAggregate(time.Now())
	ev := testEvent("a", 200, 1, 1) // timestamped 2026-03-14
	folded := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)

	Apply(agg, ev, folded)

	if got := agg.RequestsByDay.Value("2026-03-15"); got != 1 {
		t.Errorf("expected the fold-time day bucket, got series %v", agg.RequestsByDay)
	}
	if got := agg.RequestsByDay.Value("2026-03-14"); got != 0 {
		t.Errorf("event-time day bucket should be empty, got %d", got)
	}
}

func TestApplyNormalizesUnknownNames(t *testing.T) {
	agg := NewAggregate(time.Now())
	now := time.Now()

	for _, name := range []string{"", "unknown", "Unknown", "  "} {
		ev := testEvent("x", 200, 1, 0)
		ev.Model = name
		ev.Provider = name
		Apply(agg, ev, now)
	}

	if len(agg.ModelStats) != 1 {
		t.Fatalf("expected one model bucket, got %d: %v", len(agg.ModelStats), agg.ModelStats)
	}
	b, exists := agg.ModelStats[UnknownKey]
	if !exists {
		t.Fatalf("expected the %q bucket, got %v", UnknownKey, agg.ModelStats)
	}
	if b.Requests != 4 {
		t.Errorf("expected 4 requests in unknown bucket, got %d", b.Requests)
	}
	if len(agg.ProviderStats) != 1 {
		t.Errorf("expected one provider bucket, got %d", len(agg.ProviderStats))
	}
}

func TestApplyBucketStats(t *testing.T) {
	agg := NewAggregate(time.Now())
	now := time.Now()

	Apply(agg, testEvent("a", 200, 10, 5), now)
	Apply(agg, testEvent("b", 429, 3, 0), now)

	b := agg.ModelStats["gpt-4o"]
	if b.Requests != 2 || b.SuccessCount != 1 {
		t.Errorf("bucket = %+v, want 2 requests and 1 success", b)
	}
	if b.Tokens != 18 {
		t.Errorf("bucket tokens = %d, want 18", b.Tokens)
	}
}

func TestApplyNegativeTokensIgnored(t *testing.T) {
	agg := NewAggregate(time.Now())
	Apply(agg, testEvent("a", 200, -5, -3), time.Now())

	if agg.TotalTokensIn != 0 || agg.TotalTokensOut != 0 {
		t.Errorf("negative token counts should fold as zero, got in=%d out=%d",
			agg.TotalTokensIn, agg.TotalTokensOut)
	}
}

func TestTimeSeriesAddUpserts(t *testing.T) {
	var s TimeSeries
	s.Add("2026-03-14", 1)
	s.Add("2026-03-14", 2)
	s.Add("2026-03-13", 5)

	if len(s) != 2 {
		t.Fatalf("expected 2 points, got %d", len(s))
	}
	if s.Value("2026-03-14") != 3 {
		t.Errorf("expected upsert to increment in place, got %v", s)
	}

	sorted := s.Sorted()
	if sorted[0].Label != "2026-03-13" || sorted[1].Label != "2026-03-14" {
		t.Errorf("expected ascending label order, got %v", sorted)
	}
}
