package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/learnly/prepexam-backend/internal/config"
	"github.com/learnly/prepexam-backend/internal/middleware"
	"github.com/learnly/prepexam-backend/internal/response"
	"github.com/learnly/prepexam-backend/internal/service"
)

// PreviewHandler exposes the visitor's freemium preview budget.
type PreviewHandler struct {
	sessionService *service.SessionService
	cfg            *config.Config
}

// NewPreviewHandler creates a new PreviewHandler.
func NewPreviewHandler(sessionService *service.SessionService, cfg *config.Config) *PreviewHandler {
	return &PreviewHandler{sessionService: sessionService, cfg: cfg}
}

// GetPreview godoc
// GET /api/v1/preview
// Reports how many free question views the visitor has left. Signed-in
// visitors are never limited.
func (h *PreviewHandler) GetPreview(c *gin.Context) {
	authenticated := middleware.IsAuthenticated(c)
	remaining := h.sessionService.PreviewRemaining(c.Request.Context(), middleware.GetVisitorID(c), authenticated)

	response.Success(c, http.StatusOK, gin.H{
		"limit":         h.cfg.MaxFreeQuestions,
		"remaining":     remaining,
		"authenticated": authenticated,
	})
}

// ResetPreview godoc
// DELETE /api/v1/preview
// Clears the visitor's viewed-question history from every store.
func (h *PreviewHandler) ResetPreview(c *gin.Context) {
	if err := h.sessionService.ResetPreview(c.Request.Context(), middleware.GetVisitorID(c)); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reset": true})
}
