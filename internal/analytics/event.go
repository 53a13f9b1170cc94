// Package analytics records proxied requests durably and maintains two
// documents under the data directory: a bounded recent-request history and an
// unbounded cumulative aggregate. Both survive restarts and crashes; writes
// are atomic file replacements.
package analytics

import "time"

// RequestEvent is one completed proxied request, as emitted by the request
// log tailer. Events are transient; they are persisted only as entries of the
// history document.
type RequestEvent struct {
	ID         string `json:"id"`
	Timestamp  int64  `json:"timestamp"` // epoch milliseconds
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"durationMs"`
	TokensIn   int64  `json:"tokensIn"`
	TokensOut  int64  `json:"tokensOut"`
}

// Success reports whether the request completed without a client or server
// error. Anything below 400 counts as success.
func (e RequestEvent) Success() bool { return e.Status < 400 }

// TotalTokens returns the combined input and output token count.
func (e RequestEvent) TotalTokens() int64 {
	return maxInt64(e.TokensIn, 0) + maxInt64(e.TokensOut, 0)
}

// Time converts the event's epoch-millisecond timestamp to a time.Time.
func (e RequestEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
