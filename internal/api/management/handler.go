package management

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/skyrelay/skyrelay/internal/analytics"
)

// Handler serves usage queries and maintenance actions. Maintenance failures
// are returned verbatim so the UI can show the reason; they never terminate
// the process.
type Handler struct {
	ingestor *analytics.Ingestor
	query    *analytics.QueryService
	aggStore *analytics.AggregateStore
	key      string
	limiter  *rate.Limiter
}

// NewHandler wires the handler to the analytics subsystem. An empty key
// disables authentication for local-only deployments.
func NewHandler(ingestor *analytics.Ingestor, query *analytics.QueryService, aggStore *analytics.AggregateStore, key string) *Handler {
	return &Handler{
		ingestor: ingestor,
		query:    query,
		aggStore: aggStore,
		key:      key,
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Register mounts the management routes on group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.Use(h.rateLimitMiddleware(), h.authMiddleware())
	group.GET("/usage", h.GetUsage)
	group.GET("/usage/export", h.ExportUsage)
	group.POST("/usage/clear", h.ClearHistory)
	group.POST("/usage/reset", h.ResetAnalytics)
}

func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.Allow() {
			respondError(c, http.StatusTooManyRequests, ErrCodeRateLimited, "too many management requests")
			return
		}
		c.Next()
	}
}

func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.key == "" {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token != h.key {
			respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid management key")
			return
		}
		c.Next()
	}
}

// GetUsage returns the merged usage read model.
func (h *Handler) GetUsage(c *gin.Context) {
	respondOK(c, h.query.Query())
}

// ExportUsage streams either the recent history as CSV or the aggregate as
// JSON, selected by the kind query parameter.
func (h *Handler) ExportUsage(c *gin.Context) {
	switch c.DefaultQuery("kind", "history") {
	case "history":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="history.csv"`)
		if err := analytics.WriteHistoryCSV(c.Writer, h.ingestor.HistorySnapshot()); err != nil {
			respondError(c, http.StatusInternalServerError, ErrCodeWriteFailed, err.Error())
		}
	case "aggregate":
		c.Header("Content-Type", "application/json")
		c.Header("Content-Disposition", `attachment; filename="aggregate.json"`)
		if err := analytics.WriteAggregateJSON(c.Writer, h.aggStore.Load()); err != nil {
			respondError(c, http.StatusInternalServerError, ErrCodeWriteFailed, err.Error())
		}
	default:
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "kind must be history or aggregate")
	}
}

// ClearHistory empties the recent-request window. The aggregate keeps its
// counters.
func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.ingestor.Clear(); err != nil {
		respondError(c, http.StatusInternalServerError, ErrCodeWriteFailed, err.Error())
		return
	}
	respondOK(c, gin.H{"cleared": true})
}

// ResetAnalytics deletes the cumulative aggregate. History keeps its window.
func (h *Handler) ResetAnalytics(c *gin.Context) {
	if err := h.ingestor.Reset(); err != nil {
		respondError(c, http.StatusInternalServerError, ErrCodeWriteFailed, err.Error())
		return
	}
	respondOK(c, gin.H{"reset": true})
}
