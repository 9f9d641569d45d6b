package transaction

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"txnsentinel/internal/pagination"
)

// Handler provides the read-side HTTP endpoints.
type Handler struct {
	store Store
}

// NewHandler creates a new transaction handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/transactions", h.ListTransactions)
	r.GET("/transactions/:id", h.GetTransaction)
	r.GET("/anomalies", h.ListAnomalies)
	r.GET("/stats", h.GetStats)
}

// ListTransactions handles GET /v1/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	h.list(c, false, OrderByTimestamp)
}

// ListAnomalies handles GET /v1/anomalies. Flagged records only, highest
// scores first.
func (h *Handler) ListAnomalies(c *gin.Context) {
	h.list(c, true, OrderByScore)
}

func (h *Handler) list(c *gin.Context, onlyAnomalies bool, defaultOrder OrderBy) {
	q, ok := parseQuery(c)
	if !ok {
		return
	}
	q.OnlyAnomalies = onlyAnomalies
	if q.OrderBy == "" {
		q.OrderBy = defaultOrder
	}

	page := pagination.FromQuery(c)
	q.Limit = page.Limit + 1 // fetch one extra to detect more pages
	q.Offset = page.Offset

	txns, err := h.store.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	txns, meta := pagination.PageMeta(txns, page)
	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"pagination":   meta,
	})
}

// GetTransaction handles GET /v1/transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	txn, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "no transaction with this id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, txn)
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// parseQuery reads the shared filter parameters. On a malformed parameter it
// writes a 400 response and reports false.
func parseQuery(c *gin.Context) (Query, bool) {
	q := Query{AccountID: c.Query("accountId")}

	if s := c.Query("minScore"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			badParam(c, "minScore")
			return q, false
		}
		q.MinScore = &v
	}
	if s := c.Query("from"); s != "" {
		v, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badParam(c, "from")
			return q, false
		}
		q.From = &v
	}
	if s := c.Query("to"); s != "" {
		v, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badParam(c, "to")
			return q, false
		}
		q.To = &v
	}
	switch c.Query("orderBy") {
	case "":
	case "timestamp":
		q.OrderBy = OrderByTimestamp
	case "score":
		q.OrderBy = OrderByScore
	default:
		badParam(c, "orderBy")
		return q, false
	}

	return q, true
}

func badParam(c *gin.Context, name string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_parameter",
		"message": name + " is malformed",
	})
}
