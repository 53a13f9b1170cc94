package analytics

// HistoryCap bounds the retained recent-request window.
const HistoryCap = 500

// History is the persisted recent-request document (history.json). Requests
// are kept in insertion order, newest at the end, capped at HistoryCap. The
// cumulative fields predate the split aggregate document and are retained so
// older installations keep displaying sensible totals while the aggregate is
// still absent.
type History struct {
	Requests       []RequestEvent `json:"requests"`
	TotalTokensIn  int64          `json:"totalTokensIn"`
	TotalTokensOut int64          `json:"totalTokensOut"`
	TotalCostUSD   float64        `json:"totalCostUsd"`
}

// NewHistory returns an empty history document.
func NewHistory() *History {
	return &History{Requests: []RequestEvent{}}
}

// Push appends ev and evicts the oldest entries beyond HistoryCap. It returns
// the evicted events so the caller can retire their ids from any dedupe index.
func (h *History) Push(ev RequestEvent) []RequestEvent {
	h.Requests = append(h.Requests, ev)
	if len(h.Requests) <= HistoryCap {
		return nil
	}
	over := len(h.Requests) - HistoryCap
	dropped := make([]RequestEvent, over)
	copy(dropped, h.Requests[:over])
	h.Requests = append(h.Requests[:0], h.Requests[over:]...)
	return dropped
}

// Clear empties the request window. The cumulative fields are preserved so
// legacy displays keep their totals.
func (h *History) Clear() {
	h.Requests = h.Requests[:0]
}

// AddTokens folds an event's token counts into the cumulative fields.
func (h *History) AddTokens(ev RequestEvent) {
	h.TotalTokensIn += maxInt64(ev.TokensIn, 0)
	h.TotalTokensOut += maxInt64(ev.TokensOut, 0)
}
