package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/learnly/prepexam-backend/internal/middleware"
	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/learnly/prepexam-backend/internal/response"
	"github.com/learnly/prepexam-backend/internal/service"
	"github.com/learnly/prepexam-backend/internal/validator"
)

// ConsentHandler manages the visitor's consent preferences.
type ConsentHandler struct {
	consentService *service.ConsentService
}

// NewConsentHandler creates a new ConsentHandler.
func NewConsentHandler(consentService *service.ConsentService) *ConsentHandler {
	return &ConsentHandler{consentService: consentService}
}

// GetConsent godoc
// GET /api/v1/consent
func (h *ConsentHandler) GetConsent(c *gin.Context) {
	prefs := h.consentService.Preferences(c.Request.Context(), middleware.GetVisitorID(c))
	response.Success(c, http.StatusOK, gin.H{"consent": prefs})
}

// UpdateConsent godoc
// PUT /api/v1/consent
// Stores the visitor's choices. Essential stays on no matter what the
// client sends; the change applies from the very next preview operation.
func (h *ConsentHandler) UpdateConsent(c *gin.Context) {
	var req model.UpdateConsentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	prefs := model.ConsentPreferences{
		Essential:  true,
		Functional: req.Functional,
		Analytics:  req.Analytics,
		Marketing:  req.Marketing,
	}
	if err := h.consentService.Set(c.Request.Context(), middleware.GetVisitorID(c), prefs); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"consent": prefs})
}
