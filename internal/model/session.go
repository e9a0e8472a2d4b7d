package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamSession represents one learner's attempt at an exam, from start to
// completion or abandonment. A retake always creates a fresh session; a
// completed session is never mutated again.
type ExamSession struct {
	ID               uuid.UUID  `json:"id"`
	ExamID           uuid.UUID  `json:"exam_id"`
	VisitorID        string     `json:"visitor_id"`
	CurrentIndex     int        `json:"current_index"`
	Answers          []*string  `json:"answers"`
	StartedAt        time.Time  `json:"started_at"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Score            *int       `json:"score,omitempty"`
	TimeSpentSeconds *int       `json:"time_spent_seconds,omitempty"`
}

// SubmitAnswerRequest is the payload for answering the current question.
type SubmitAnswerRequest struct {
	SelectedOption string `json:"selected_option" binding:"required,max=10"`
}
