package websocket

import "github.com/learnly/prepexam-backend/internal/engine"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer  Action = "answer"
	ActionAdvance Action = "advance"
	ActionBack    Action = "back"
	ActionFinish  Action = "finish"
	ActionPing    Action = "ping"
)

// RequestPayload carries every client action; Answer is only set for
// ActionAnswer.
type RequestPayload struct {
	Action Action `json:"action"`
	Answer string `json:"answer,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventAuthRequired Event = "auth_required"
	EventCompleted    Event = "completed"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// StateResponse pushes a full session snapshot: sent on every transition
// and on every timer tick.
type StateResponse struct {
	Event    Event           `json:"event"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

// AuthRequiredResponse asks the client to show the sign-in prompt.
type AuthRequiredResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
