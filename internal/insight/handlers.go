package insight

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"txnsentinel/internal/transaction"
)

// Handler provides the on-demand explanation endpoint.
type Handler struct {
	dispatcher *Dispatcher
	store      transaction.Store
}

// NewHandler creates a new insight handler.
func NewHandler(dispatcher *Dispatcher, store transaction.Store) *Handler {
	return &Handler{dispatcher: dispatcher, store: store}
}

// RegisterRoutes sets up insight routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/insights/:id", h.GetInsight)
}

// GetInsight handles GET /v1/insights/:id
//
// If the record is flagged but has no reason yet, one explanation attempt is
// made inline. A record that still has no reason after that is returned as-is;
// explanation failures are never surfaced as request failures.
func (h *Handler) GetInsight(c *gin.Context) {
	id := c.Param("id")

	txn, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == transaction.ErrNotFound {
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

	h.dispatcher.AnnotateOne(c.Request.Context(), txn)

	c.JSON(http.StatusOK, gin.H{
		"id":            txn.ID,
		"isAnomaly":     txn.IsAnomaly,
		"anomalyScore":  txn.AnomalyScore,
		"anomalyReason": txn.AnomalyReason,
		"explained":     txn.AnomalyReason != "",
	})
}
