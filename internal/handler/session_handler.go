package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/learnly/prepexam-backend/internal/engine"
	"github.com/learnly/prepexam-backend/internal/middleware"
	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/learnly/prepexam-backend/internal/response"
	"github.com/learnly/prepexam-backend/internal/service"
	"github.com/learnly/prepexam-backend/internal/validator"
)

// SessionHandler drives the exam-session engine over HTTP. Every endpoint
// returns the full session snapshot so the UI stays a thin subscriber.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// StartSession godoc
// POST /api/v1/exams/:exam_id/session
// Creates or resumes the visitor's session and starts the countdown.
func (h *SessionHandler) StartSession(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	snap, err := h.sessionService.StartSession(
		c.Request.Context(), middleware.GetVisitorID(c), examID, middleware.IsAuthenticated(c))
	if err != nil {
		failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": snap})
}

// GetState godoc
// GET /api/v1/exams/:exam_id/session
func (h *SessionHandler) GetState(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	snap, err := h.sessionService.State(middleware.GetVisitorID(c), examID, middleware.IsAuthenticated(c))
	if err != nil {
		failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": snap})
}

// SubmitAnswer godoc
// POST /api/v1/exams/:exam_id/session/answer
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.sessionService.SubmitAnswer(
		c.Request.Context(), middleware.GetVisitorID(c), examID, req.SelectedOption, middleware.IsAuthenticated(c))
	if err != nil {
		failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": snap})
}

// Advance godoc
// POST /api/v1/exams/:exam_id/session/advance
func (h *SessionHandler) Advance(c *gin.Context) {
	h.transition(c, h.sessionService.Advance)
}

// GoBack godoc
// POST /api/v1/exams/:exam_id/session/back
func (h *SessionHandler) GoBack(c *gin.Context) {
	h.transition(c, h.sessionService.GoBack)
}

// Finish godoc
// POST /api/v1/exams/:exam_id/session/finish
// Idempotent: finishing a completed session returns its snapshot unchanged.
func (h *SessionHandler) Finish(c *gin.Context) {
	h.transition(c, h.sessionService.Finish)
}

// CloseSession godoc
// DELETE /api/v1/exams/:exam_id/session
// Tears down the live controller (navigation away); the persisted session
// remains and can be resumed.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	h.sessionService.CloseSession(middleware.GetVisitorID(c), examID)
	response.Success(c, http.StatusOK, gin.H{"closed": true})
}

func (h *SessionHandler) transition(
	c *gin.Context,
	fn func(ctx context.Context, visitorID string, examID uuid.UUID, authenticated bool) (engine.Snapshot, error),
) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	snap, err := fn(c.Request.Context(), middleware.GetVisitorID(c), examID, middleware.IsAuthenticated(c))
	if err != nil {
		failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": snap})
}

func examIDParam(c *gin.Context) (uuid.UUID, bool) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return examID, true
}

// failFromEngine maps engine errors onto API error codes. Preview gating is
// the signal for the client to open its sign-in prompt.
func failFromEngine(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrPreviewLimited):
		response.Fail(c, http.StatusForbidden, response.ErrPreviewLimitReached)
	case errors.Is(err, engine.ErrInvalidPhase):
		response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
	case errors.Is(err, service.ErrNoActiveSession), errors.Is(err, engine.ErrSessionClosed):
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
	case errors.Is(err, engine.ErrContentFetch):
		response.Fail(c, http.StatusBadGateway, response.ErrContentFetchFailed)
	case errors.Is(err, engine.ErrSessionCreate):
		response.Fail(c, http.StatusBadGateway, response.ErrSessionCreateFailed)
	case errors.Is(err, engine.ErrSessionUpdate):
		response.Fail(c, http.StatusBadGateway, response.ErrSessionUpdateFailed)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
