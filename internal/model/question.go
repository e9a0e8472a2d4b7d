package model

import (
	"github.com/google/uuid"
)

// Question represents a single exam question. Immutable content supplied by
// the exam catalog.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ExamID        uuid.UUID `json:"exam_id"`
	QuestionText  string    `json:"question_text"`
	Options       []string  `json:"options"`
	CorrectOption int       `json:"correct_option"`
	Explanation   *string   `json:"explanation,omitempty"`
	// Domain groups questions for the per-topic score breakdown.
	Domain   *string `json:"domain,omitempty"`
	OrderNum int     `json:"order_num"`
}
