package ingest

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"txnsentinel/internal/transaction"
	"txnsentinel/internal/validation"
)

// Handler provides HTTP endpoints for the write path.
type Handler struct {
	service *Service
}

// NewHandler creates a new ingest handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up ingest routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/ingest", h.Ingest)
	r.POST("/recompute", h.Recompute)
}

type ingestRequest struct {
	Transactions []transaction.Input `json:"transactions"`
}

// Ingest handles POST /v1/ingest
func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), req.Transactions)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": "batch rejected, nothing was stored",
				"details": verrs,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

type recomputeRequest struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// Recompute handles POST /v1/recompute
func (h *Handler) Recompute(c *gin.Context) {
	var req recomputeRequest
	// An empty body means an unbounded window.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_window",
			"message": "from must not be after to",
		})
		return
	}

	n, err := h.service.Recompute(c.Request.Context(), req.From, req.To)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recomputed": n})
}
