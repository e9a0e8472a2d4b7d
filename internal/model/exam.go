package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents a practice exam's metadata.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`
	QuestionCount   int       `json:"question_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// ExamPayload is the Redis-cached payload sent to learners (no correct answers).
type ExamPayload struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration_minutes"`
	Questions []QuestionForLearner `json:"questions"`
}

// QuestionForLearner is a question without the correct answer or explanation.
type QuestionForLearner struct {
	ID           uuid.UUID `json:"id"`
	QuestionText string    `json:"question_text"`
	Options      []string  `json:"options"`
	OrderNum     int       `json:"order_num"`
	Domain       string    `json:"domain,omitempty"`
}

// ForLearner strips grading fields from a full question.
func (q *Question) ForLearner() QuestionForLearner {
	domain := ""
	if q.Domain != nil {
		domain = *q.Domain
	}
	return QuestionForLearner{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		Options:      q.Options,
		OrderNum:     q.OrderNum,
		Domain:       domain,
	}
}
