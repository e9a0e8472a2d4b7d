package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/learnly/prepexam-backend/internal/model"
)

// ExamSessionRepository handles exam session data access. Updates are
// partial by design: answer progress and completion fields are written
// without requiring the full session payload.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// Create inserts a new session for a visitor opening an exam.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	answersRaw, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, visitor_id, current_index, answers)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, started_at`,
		s.ExamID, s.VisitorID, s.CurrentIndex, answersRaw,
	).Scan(&s.ID, &s.StartedAt)
}

// GetActive retrieves the visitor's most recent uncompleted session for an
// exam. Returns pgx.ErrNoRows when none exists; a completed session is
// never returned, so a retake always creates a fresh one.
func (r *ExamSessionRepository) GetActive(ctx context.Context, examID uuid.UUID, visitorID string) (*model.ExamSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, visitor_id, current_index, answers, started_at,
		        completed, completed_at, score, time_spent_seconds
		 FROM exam_sessions
		 WHERE exam_id = $1 AND visitor_id = $2 AND completed = FALSE
		 ORDER BY started_at DESC
		 LIMIT 1`, examID, visitorID,
	)
	return scanSession(row)
}

// GetByID retrieves a session by identifier.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, visitor_id, current_index, answers, started_at,
		        completed, completed_at, score, time_spent_seconds
		 FROM exam_sessions
		 WHERE id = $1`, id,
	)
	return scanSession(row)
}

// UpdateProgress writes the answer list and current index. Completed
// sessions are immutable, enforced by the WHERE clause.
func (r *ExamSessionRepository) UpdateProgress(ctx context.Context, id uuid.UUID, currentIndex int, answers []*string) error {
	answersRaw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET current_index = $1, answers = $2
		 WHERE id = $3 AND completed = FALSE`,
		currentIndex, answersRaw, id)
	return err
}

// Complete marks a session finished with its score and time spent. The
// completed guard makes repeated calls no-ops.
func (r *ExamSessionRepository) Complete(ctx context.Context, id uuid.UUID, score, timeSpentSeconds int) error {
	now := time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET completed = TRUE, completed_at = $1, score = $2, time_spent_seconds = $3
		 WHERE id = $4 AND completed = FALSE`,
		now, score, timeSpentSeconds, id)
	return err
}

// ListByVisitor retrieves a visitor's session history, newest first.
func (r *ExamSessionRepository) ListByVisitor(ctx context.Context, visitorID string) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, visitor_id, current_index, answers, started_at,
		        completed, completed_at, score, time_spent_seconds
		 FROM exam_sessions
		 WHERE visitor_id = $1
		 ORDER BY started_at DESC`, visitorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var answersRaw []byte
	err := row.Scan(
		&s.ID, &s.ExamID, &s.VisitorID, &s.CurrentIndex, &answersRaw, &s.StartedAt,
		&s.Completed, &s.CompletedAt, &s.Score, &s.TimeSpentSeconds,
	)
	if err != nil {
		return nil, err
	}
	if len(answersRaw) > 0 {
		if err := json.Unmarshal(answersRaw, &s.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return s, nil
}
