package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/learnly/prepexam-backend/internal/config"
	"github.com/learnly/prepexam-backend/internal/engine"
	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/learnly/prepexam-backend/internal/preview"
	"github.com/learnly/prepexam-backend/internal/repository"
	"github.com/learnly/prepexam-backend/internal/scoring"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoActiveSession is returned when an operation targets an exam the
// visitor has not started (or has already torn down).
var ErrNoActiveSession = errors.New("no active session for this exam")

// SessionService owns the live session controllers, one per visitor+exam.
// It adapts the repositories and Redis queues to the engine's interfaces
// and relays the visitor's auth status into the preview gate.
type SessionService struct {
	mu          sync.Mutex
	controllers map[string]*engine.Controller

	sessionRepo *repository.ExamSessionRepository
	exams       *ExamService
	gates       *preview.Manager
	rdb         *redis.Client
	cfg         *config.Config
	log         zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessionRepo *repository.ExamSessionRepository,
	exams *ExamService,
	gates *preview.Manager,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		controllers: make(map[string]*engine.Controller),
		sessionRepo: sessionRepo,
		exams:       exams,
		gates:       gates,
		rdb:         rdb,
		cfg:         cfg,
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

// StartSession creates or resumes the visitor's session for an exam and
// returns the initial snapshot. Idempotent: a second start while a
// controller is live returns its current state.
func (s *SessionService) StartSession(ctx context.Context, visitorID string, examID uuid.UUID, authenticated bool) (engine.Snapshot, error) {
	key := s.controllerKey(visitorID, examID)

	s.mu.Lock()
	if c, ok := s.controllers[key]; ok {
		s.mu.Unlock()
		s.updateAuth(visitorID, authenticated)
		return c.State(), nil
	}
	s.mu.Unlock()

	gate := s.gateFor(visitorID)
	gate.SetAuthenticated(authenticated)

	c := engine.NewController(engine.Config{
		Sessions:  &sessionStore{svc: s},
		Content:   s.exams,
		Gate:      gate,
		VisitorID: visitorID,
		Log:       s.log,
		OnAuthRequired: func() {
			s.log.Debug().Str("visitor_id", visitorID).Msg("Auth prompt requested")
		},
		OnError: func(err error) {
			s.log.Warn().Err(err).Str("visitor_id", visitorID).Msg("Session persistence degraded")
		},
		OnComplete: func(res scoring.Result) {
			s.log.Info().
				Str("visitor_id", visitorID).
				Str("exam_id", examID.String()).
				Int("score", res.Percent).
				Msg("Exam finished")
		},
	})

	if err := c.Start(ctx, examID); err != nil {
		return engine.Snapshot{}, err
	}

	s.mu.Lock()
	// A concurrent start may have won; keep the first controller and
	// discard ours so only one tick source drives the session.
	if existing, ok := s.controllers[key]; ok {
		s.mu.Unlock()
		c.Close()
		return existing.State(), nil
	}
	s.controllers[key] = c
	s.mu.Unlock()

	return c.State(), nil
}

// State returns the current snapshot for the visitor's session.
func (s *SessionService) State(visitorID string, examID uuid.UUID, authenticated bool) (engine.Snapshot, error) {
	c, err := s.controller(visitorID, examID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	s.updateAuth(visitorID, authenticated)
	return c.State(), nil
}

// SubmitAnswer records the learner's option for the current question.
func (s *SessionService) SubmitAnswer(ctx context.Context, visitorID string, examID uuid.UUID, option string, authenticated bool) (engine.Snapshot, error) {
	c, err := s.controller(visitorID, examID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	s.updateAuth(visitorID, authenticated)
	if err := c.SubmitAnswer(ctx, option); err != nil {
		return c.State(), err
	}
	return c.State(), nil
}

// Advance moves past the feedback view.
func (s *SessionService) Advance(ctx context.Context, visitorID string, examID uuid.UUID, authenticated bool) (engine.Snapshot, error) {
	c, err := s.controller(visitorID, examID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	s.updateAuth(visitorID, authenticated)
	if err := c.Advance(ctx); err != nil {
		return c.State(), err
	}
	return c.State(), nil
}

// GoBack returns to the previous question.
func (s *SessionService) GoBack(ctx context.Context, visitorID string, examID uuid.UUID, authenticated bool) (engine.Snapshot, error) {
	c, err := s.controller(visitorID, examID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	s.updateAuth(visitorID, authenticated)
	if err := c.GoBack(ctx); err != nil {
		return c.State(), err
	}
	return c.State(), nil
}

// Finish completes the session early (or is a no-op when already done).
func (s *SessionService) Finish(ctx context.Context, visitorID string, examID uuid.UUID, authenticated bool) (engine.Snapshot, error) {
	c, err := s.controller(visitorID, examID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	s.updateAuth(visitorID, authenticated)
	if err := c.Finish(ctx); err != nil {
		return c.State(), err
	}
	return c.State(), nil
}

// Controller exposes the live controller, e.g. for WebSocket subscribers.
func (s *SessionService) Controller(visitorID string, examID uuid.UUID) (*engine.Controller, error) {
	return s.controller(visitorID, examID)
}

// CloseSession tears down the visitor's controller. Late asynchronous
// results for it are discarded, not applied.
func (s *SessionService) CloseSession(visitorID string, examID uuid.UUID) {
	key := s.controllerKey(visitorID, examID)
	s.mu.Lock()
	c, ok := s.controllers[key]
	if ok {
		delete(s.controllers, key)
	}
	s.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Shutdown closes every live controller.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	controllers := make([]*engine.Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		controllers = append(controllers, c)
	}
	s.controllers = make(map[string]*engine.Controller)
	s.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
}

// PreviewRemaining returns the visitor's remaining free question views.
func (s *SessionService) PreviewRemaining(ctx context.Context, visitorID string, authenticated bool) int {
	gate := s.gateFor(visitorID)
	gate.SetAuthenticated(authenticated)
	return gate.Remaining(ctx)
}

// ResetPreview clears the visitor's viewed-question set everywhere.
func (s *SessionService) ResetPreview(ctx context.Context, visitorID string) error {
	return s.gateFor(visitorID).Reset(ctx)
}

func (s *SessionService) controller(visitorID string, examID uuid.UUID) (*engine.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.controllers[s.controllerKey(visitorID, examID)]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return c, nil
}

func (s *SessionService) controllerKey(visitorID string, examID uuid.UUID) string {
	return visitorID + ":" + examID.String()
}

func (s *SessionService) gateFor(visitorID string) *preview.Gate {
	return s.gates.GateFor(visitorID, func() {
		s.log.Debug().Str("visitor_id", visitorID).Msg("Free preview limit reached")
	})
}

func (s *SessionService) updateAuth(visitorID string, authenticated bool) {
	s.gateFor(visitorID).SetAuthenticated(authenticated)
}

// ───────────────────────────────────────────────────────────────────────────
// engine.SessionStore adapter
// ───────────────────────────────────────────────────────────────────────────

type sessionStore struct {
	svc *SessionService
}

func (st *sessionStore) CreateSession(ctx context.Context, examID uuid.UUID, visitorID string) (*model.ExamSession, error) {
	session := &model.ExamSession{
		ExamID:    examID,
		VisitorID: visitorID,
	}
	if err := st.svc.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (st *sessionStore) ResumeSession(ctx context.Context, examID uuid.UUID, visitorID string) (*model.ExamSession, error) {
	session, err := st.svc.sessionRepo.GetActive(ctx, examID, visitorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resume session: %w", err)
	}
	return session, nil
}

// SaveProgress enqueues the answer list for the autosave worker. When Redis
// is unreachable it degrades to a direct synchronous write so progress is
// not lost, just slower.
func (st *sessionStore) SaveProgress(ctx context.Context, sessionID uuid.UUID, currentIndex int, answers []*string) error {
	payload, err := json.Marshal(struct {
		SessionID    string    `json:"session_id"`
		CurrentIndex int       `json:"current_index"`
		Answers      []*string `json:"answers"`
	}{sessionID.String(), currentIndex, answers})
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	if err := st.svc.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		st.svc.log.Warn().Err(err).Msg("Answer queue unavailable, writing directly")
		if dbErr := st.svc.sessionRepo.UpdateProgress(ctx, sessionID, currentIndex, answers); dbErr != nil {
			return fmt.Errorf("save progress: %w", dbErr)
		}
	}
	return nil
}

// CompleteSession writes the completion fields. On failure the payload is
// queued for the result worker to retry; the error still propagates so the
// caller can surface a retry banner.
func (st *sessionStore) CompleteSession(ctx context.Context, sessionID uuid.UUID, score, timeSpent int) error {
	err := st.svc.sessionRepo.Complete(ctx, sessionID, score, timeSpent)
	if err == nil {
		return nil
	}

	payload, mErr := json.Marshal(struct {
		SessionID string `json:"session_id"`
		Score     int    `json:"score"`
		TimeSpent int    `json:"time_spent_seconds"`
	}{sessionID.String(), score, timeSpent})
	if mErr == nil {
		if qErr := st.svc.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err(); qErr != nil {
			st.svc.log.Error().Err(qErr).Str("session_id", sessionID.String()).Msg("Result requeue failed")
		}
	}
	return fmt.Errorf("complete session: %w", err)
}
