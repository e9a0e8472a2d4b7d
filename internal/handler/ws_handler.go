package handler

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/learnly/prepexam-backend/internal/engine"
	"github.com/learnly/prepexam-backend/internal/middleware"
	"github.com/learnly/prepexam-backend/internal/service"
	ws "github.com/learnly/prepexam-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams live session state over WebSocket: every transition and
// every timer tick is pushed as a full snapshot, so the client renders
// without polling.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/exams/:exam_id/stream
// Requires an active session (start it over HTTP first), then relays client
// actions into the session engine and pushes snapshots back.
func (h *WSHandler) SessionStream(c *gin.Context) {
	visitorID := middleware.GetVisitorID(c)
	authenticated := middleware.IsAuthenticated(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctrl, err := h.sessionService.Controller(visitorID, examID)
	if err != nil {
		ws.WriteError(conn, "no active session for this exam")
		return
	}

	wsLog := h.log.With().
		Str("visitor_id", visitorID).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Visitor connected")

	// gorilla/websocket allows a single concurrent writer, so every frame
	// (snapshot push, pong, error) is funneled through one channel drained
	// by writeLoop. Engine callbacks must never block: a full buffer drops
	// intermediate snapshots, the next one supersedes them anyway.
	frames := make(chan interface{}, 32)
	var gone atomic.Bool
	send := func(frame interface{}) {
		if gone.Load() {
			return
		}
		select {
		case frames <- frame:
		default:
		}
	}

	ctrl.Subscribe(func(snap engine.Snapshot) {
		event := ws.EventState
		if snap.Phase == engine.PhaseCompleted {
			event = ws.EventCompleted
		}
		send(ws.StateResponse{Event: event, Snapshot: snap})
	})
	defer gone.Store(true)

	done := make(chan struct{})
	defer close(done)
	go writeLoop(conn, wsLog, frames, done)

	// Initial frame so the client can render immediately.
	send(ws.StateResponse{Event: ws.EventState, Snapshot: ctrl.State()})

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		if !h.handleAction(c, wsLog, send, visitorID, examID, authenticated, &msg) {
			return
		}
	}
}

func writeLoop(conn *websocket.Conn, wsLog zerolog.Logger, frames <-chan interface{}, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case frame := <-frames:
			if err := ws.WriteTyped(conn, frame); err != nil {
				wsLog.Debug().Err(err).Msg("Push failed, closing connection")
				conn.Close()
				return
			}
		}
	}
}

// handleAction dispatches one client action. Snapshots reach the client via
// the controller's subscriber, not as a direct reply, so HTTP and WebSocket
// clients observe identical state. Returns false to drop the connection.
func (h *WSHandler) handleAction(c *gin.Context, wsLog zerolog.Logger, send func(interface{}), visitorID string, examID uuid.UUID, authenticated bool, msg *ws.RequestPayload) bool {
	ctx := c.Request.Context()

	var err error
	switch msg.Action {
	case ws.ActionPing:
		send(ws.PongResponse{Event: ws.EventPong})
		return true
	case ws.ActionAnswer:
		if msg.Answer == "" {
			send(ws.ErrorResponse{Event: ws.EventError, Error: "answer is required"})
			return true
		}
		_, err = h.sessionService.SubmitAnswer(ctx, visitorID, examID, msg.Answer, authenticated)
	case ws.ActionAdvance:
		_, err = h.sessionService.Advance(ctx, visitorID, examID, authenticated)
	case ws.ActionBack:
		_, err = h.sessionService.GoBack(ctx, visitorID, examID, authenticated)
	case ws.ActionFinish:
		_, err = h.sessionService.Finish(ctx, visitorID, examID, authenticated)
	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		return true
	}

	switch {
	case err == nil:
	case errors.Is(err, engine.ErrPreviewLimited):
		send(ws.AuthRequiredResponse{Event: ws.EventAuthRequired})
	case errors.Is(err, engine.ErrSessionClosed), errors.Is(err, service.ErrNoActiveSession):
		send(ws.ErrorResponse{Event: ws.EventError, Error: "session is closed"})
		return false
	default:
		send(ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
	}
	return true
}
