package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/learnly/prepexam-backend/internal/scoring"
	"github.com/rs/zerolog"
)

// Phase enumerates the session state machine.
type Phase string

const (
	PhaseNotStarted       Phase = "NOT_STARTED"
	PhaseInProgress       Phase = "IN_PROGRESS"
	PhaseAwaitingFeedback Phase = "AWAITING_FEEDBACK"
	PhaseCompleted        Phase = "COMPLETED"
)

var (
	// ErrSessionCreate wraps persistence failures during session creation.
	// Recoverable: the caller retries.
	ErrSessionCreate = errors.New("session create failed")
	// ErrSessionUpdate wraps persistence failures while saving progress or
	// completion. Local state is kept; the save retries.
	ErrSessionUpdate = errors.New("session update failed")
	// ErrContentFetch wraps failures loading exam metadata or questions.
	// Fatal to session start.
	ErrContentFetch = errors.New("content fetch failed")
)

// SessionStore is the persistence boundary for exam sessions. SaveProgress
// is expected to be asynchronous-friendly: the controller calls it off the
// hot path and never blocks a transition on it.
type SessionStore interface {
	CreateSession(ctx context.Context, examID uuid.UUID, visitorID string) (*model.ExamSession, error)
	// ResumeSession returns (nil, nil) when the visitor has no active
	// session for the exam.
	ResumeSession(ctx context.Context, examID uuid.UUID, visitorID string) (*model.ExamSession, error)
	SaveProgress(ctx context.Context, sessionID uuid.UUID, currentIndex int, answers []*string) error
	CompleteSession(ctx context.Context, sessionID uuid.UUID, score, timeSpent int) error
}

// ContentSource supplies immutable exam content.
type ContentSource interface {
	Exam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	Questions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// PreviewGate decides whether a question may be shown to this visitor and
// records what has been seen.
type PreviewGate interface {
	CanViewQuestion(ctx context.Context, questionID string) bool
	MarkViewed(ctx context.Context, questionID string)
	Remaining(ctx context.Context) int
}

// Feedback is shown after an answer is submitted, while the clock is frozen.
type Feedback struct {
	SelectedOption string `json:"selected_option"`
	CorrectOption  int    `json:"correct_option"`
	Correct        bool   `json:"correct"`
	Explanation    string `json:"explanation,omitempty"`
}

// Snapshot is the full state exposed to the UI layer. The UI is a thin
// subscriber; all session logic stays in the controller.
type Snapshot struct {
	Phase           Phase                     `json:"phase"`
	SessionID       uuid.UUID                 `json:"session_id"`
	ExamID          uuid.UUID                 `json:"exam_id"`
	ExamTitle       string                    `json:"exam_title"`
	CurrentIndex    int                       `json:"current_index"`
	QuestionCount   int                       `json:"question_count"`
	Question        *model.QuestionForLearner `json:"question,omitempty"`
	SelectedOption  *string                   `json:"selected_option,omitempty"`
	Timer           TimerState                `json:"timer"`
	Feedback        *Feedback                 `json:"feedback,omitempty"`
	Gated           bool                      `json:"gated"`
	RemainingFree   int                       `json:"remaining_free"`
	CanGoBack       bool                      `json:"can_go_back"`
	IsLastQuestion  bool                      `json:"is_last_question"`
	Result          *scoring.Result           `json:"result,omitempty"`
}

// Config wires a Controller to its collaborators.
type Config struct {
	Sessions  SessionStore
	Content   ContentSource
	Gate      PreviewGate
	VisitorID string
	Log       zerolog.Logger
	// TickInterval defaults to one second. Zero disables the internal
	// ticker (countdown driven externally).
	TickInterval time.Duration
	// OnAuthRequired asks the surrounding UI to show the sign-in prompt.
	OnAuthRequired func()
	// OnError reports recoverable persistence failures (retry banner).
	OnError func(error)
	// OnComplete signals navigation to the results view.
	OnComplete func(scoring.Result)
}

// Controller owns one visitor's exam session: lifecycle, navigation,
// submission and completion. All transitions are serialized by its mutex;
// the timer and persistence callbacks re-enter through exported methods.
type Controller struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	phase     Phase
	exam      *model.Exam
	questions []model.Question
	session   *model.ExamSession
	answers   *AnswerStore
	timer     *Timer

	allottedSeconds int
	result          *scoring.Result
	closed          bool
	subscribers     []func(Snapshot)
}

// NewController creates a controller in the NotStarted phase.
func NewController(cfg Config) *Controller {
	interval := cfg.TickInterval
	if interval == 0 {
		interval = time.Second
	} else if interval < 0 {
		// Negative interval disables the internal ticker; tests drive the
		// countdown directly.
		interval = 0
	}
	c := &Controller{
		cfg:   cfg,
		log:   cfg.Log.With().Str("component", "session_controller").Str("visitor_id", cfg.VisitorID).Logger(),
		phase: PhaseNotStarted,
	}
	c.timer = NewTimer(interval,
		func(st TimerState) { c.publishTimer(st) },
		func() {
			// The expiry path must always resolve to a finish; missing
			// answers score as incorrect rather than failing.
			_ = c.Finish(context.Background())
		},
	)
	return c
}

// Start fetches content, creates or resumes the persisted session and moves
// the machine to InProgress. Content failures are fatal to the start;
// creation failures surface as ErrSessionCreate for retry.
func (c *Controller) Start(ctx context.Context, examID uuid.UUID) error {
	exam, err := c.cfg.Content.Exam(ctx, examID)
	if err != nil {
		return fmt.Errorf("%w: exam %s: %v", ErrContentFetch, examID, err)
	}
	questions, err := c.cfg.Content.Questions(ctx, examID)
	if err != nil {
		return fmt.Errorf("%w: questions for exam %s: %v", ErrContentFetch, examID, err)
	}
	if len(questions) == 0 {
		return fmt.Errorf("%w: exam %s has no questions", ErrContentFetch, examID)
	}

	session, err := c.cfg.Sessions.ResumeSession(ctx, examID, c.cfg.VisitorID)
	if err != nil {
		return fmt.Errorf("%w: resume: %v", ErrSessionCreate, err)
	}
	resumed := session != nil
	if !resumed {
		session, err = c.cfg.Sessions.CreateSession(ctx, examID, c.cfg.VisitorID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSessionCreate, err)
		}
	}

	allotted := exam.DurationMinutes * 60
	remaining := allotted
	if resumed {
		elapsed := int(time.Since(session.StartedAt).Seconds())
		remaining = allotted - elapsed
		if remaining < 0 {
			remaining = 0
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.phase != PhaseNotStarted {
		c.mu.Unlock()
		return ErrInvalidPhase
	}
	c.exam = exam
	c.questions = questions
	c.session = session
	c.allottedSeconds = allotted
	c.answers = NewAnswerStore(len(questions))
	if resumed {
		c.answers.Restore(session.Answers)
		if session.CurrentIndex < 0 || session.CurrentIndex >= len(questions) {
			c.log.Warn().Int("index", session.CurrentIndex).Msg("Persisted index out of range, clamping")
			session.CurrentIndex = 0
		}
	}
	c.phase = PhaseInProgress
	c.timer.Configure(remaining)
	c.cfg.Gate.MarkViewed(ctx, c.currentQuestionLocked().ID.String())

	if remaining == 0 {
		// Resumed an already-expired attempt: close it out immediately.
		c.finishLocked(ctx)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// SubmitAnswer records the selected option for the current question and
// moves to AwaitingFeedback. Gated questions are rejected without touching
// state; the auth prompt is triggered instead.
func (c *Controller) SubmitAnswer(ctx context.Context, option string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.phase != PhaseInProgress {
		c.mu.Unlock()
		return ErrInvalidPhase
	}

	q := c.currentQuestionLocked()
	if !c.cfg.Gate.CanViewQuestion(ctx, q.ID.String()) {
		c.mu.Unlock()
		c.requestAuth()
		return ErrPreviewLimited
	}

	if err := c.answers.Set(c.session.CurrentIndex, option); err != nil {
		// Logic bug, not a learner-facing failure: log and carry on.
		c.log.Error().Err(err).Int("index", c.session.CurrentIndex).Msg("Answer write rejected")
		c.mu.Unlock()
		return nil
	}

	c.phase = PhaseAwaitingFeedback
	c.timer.Suspend()

	sessionID := c.session.ID
	index := c.session.CurrentIndex
	answers := c.answers.Export()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	// Fire-and-forget: the UI transition never waits on persistence.
	go c.saveProgress(context.WithoutCancel(ctx), sessionID, index, answers)

	c.publish(snap)
	return nil
}

// Advance moves past the feedback view: to the next question, or to
// completion when the current question is the last one.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.phase != PhaseAwaitingFeedback {
		c.mu.Unlock()
		return ErrInvalidPhase
	}

	if c.session.CurrentIndex >= len(c.questions)-1 {
		c.finishLocked(ctx)
		snap := c.snapshotLocked()
		result := *c.result
		c.mu.Unlock()
		c.publish(snap)
		if c.cfg.OnComplete != nil {
			c.cfg.OnComplete(result)
		}
		return nil
	}

	c.session.CurrentIndex++
	c.phase = PhaseInProgress
	c.timer.Resume()

	q := c.currentQuestionLocked()
	c.cfg.Gate.MarkViewed(ctx, q.ID.String())
	gated := !c.cfg.Gate.CanViewQuestion(ctx, q.ID.String())

	sessionID := c.session.ID
	index := c.session.CurrentIndex
	answers := c.answers.Export()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	go c.saveProgress(context.WithoutCancel(ctx), sessionID, index, answers)

	if gated {
		// Navigation itself is not blocked; the UI masks the question and
		// shows the sign-in prompt.
		c.requestAuth()
	}
	c.publish(snap)
	return nil
}

// GoBack returns to the previous question, restoring its recorded answer
// and dismissing any feedback.
func (c *Controller) GoBack(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.phase != PhaseInProgress && c.phase != PhaseAwaitingFeedback {
		c.mu.Unlock()
		return ErrInvalidPhase
	}
	if c.session.CurrentIndex == 0 {
		c.mu.Unlock()
		return ErrInvalidPhase
	}

	c.session.CurrentIndex--
	c.phase = PhaseInProgress
	c.timer.Resume()

	sessionID := c.session.ID
	index := c.session.CurrentIndex
	answers := c.answers.Export()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	go c.saveProgress(context.WithoutCancel(ctx), sessionID, index, answers)

	c.publish(snap)
	return nil
}

// Finish scores the attempt and marks the session completed. Idempotent:
// finishing an already-completed session is a no-op.
func (c *Controller) Finish(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.phase == PhaseNotStarted {
		c.mu.Unlock()
		return ErrInvalidPhase
	}
	if c.phase == PhaseCompleted {
		c.mu.Unlock()
		return nil
	}
	c.finishLocked(ctx)
	snap := c.snapshotLocked()
	result := *c.result
	c.mu.Unlock()

	c.publish(snap)
	if c.cfg.OnComplete != nil {
		c.cfg.OnComplete(result)
	}
	return nil
}

// finishLocked runs the scoring/persist/transition sequence. Caller holds
// the lock and has verified the session is not already completed.
func (c *Controller) finishLocked(ctx context.Context) {
	if c.phase == PhaseCompleted {
		return
	}

	res := scoring.Score(c.questions, c.answers.Export())
	res.TimeSpentSeconds = scoring.TimeSpent(c.allottedSeconds, c.timer.Remaining())

	c.timer.Cancel()
	c.phase = PhaseCompleted
	c.result = &res

	now := time.Now()
	c.session.Completed = true
	c.session.CompletedAt = &now
	score := res.Percent
	timeSpent := res.TimeSpentSeconds
	c.session.Score = &score
	c.session.TimeSpentSeconds = &timeSpent

	sessionID := c.session.ID
	go func() {
		if err := c.cfg.Sessions.CompleteSession(context.WithoutCancel(ctx), sessionID, score, timeSpent); err != nil {
			c.reportError(fmt.Errorf("%w: complete: %v", ErrSessionUpdate, err))
		}
	}()

	c.log.Info().
		Str("session_id", sessionID.String()).
		Int("score", score).
		Int("time_spent", timeSpent).
		Msg("Session completed")
}

// Close invalidates the controller: the timer is cancelled and any late
// asynchronous result is discarded rather than applied.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.timer.Cancel()
	c.mu.Unlock()
}

// State returns the current snapshot.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers a listener for state changes, including timer ticks.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.mu.Unlock()
}

// Phase returns the current machine phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Result returns the final result once completed.
func (c *Controller) Result() *scoring.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Controller) currentQuestionLocked() *model.Question {
	return &c.questions[c.session.CurrentIndex]
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase: c.phase,
		Timer: c.timer.State(),
	}
	if c.session == nil {
		return snap
	}

	snap.SessionID = c.session.ID
	snap.ExamID = c.session.ExamID
	snap.ExamTitle = c.exam.Title
	snap.CurrentIndex = c.session.CurrentIndex
	snap.QuestionCount = len(c.questions)
	snap.CanGoBack = c.session.CurrentIndex > 0 && c.phase != PhaseCompleted
	snap.IsLastQuestion = c.session.CurrentIndex == len(c.questions)-1
	snap.RemainingFree = c.cfg.Gate.Remaining(context.Background())
	snap.Result = c.result

	if c.phase == PhaseCompleted {
		return snap
	}

	q := c.currentQuestionLocked()
	learnerQ := q.ForLearner()
	snap.Question = &learnerQ
	snap.Gated = !c.cfg.Gate.CanViewQuestion(context.Background(), q.ID.String())

	if opt, ok := c.answers.Get(c.session.CurrentIndex); ok {
		snap.SelectedOption = &opt
	}

	if c.phase == PhaseAwaitingFeedback && snap.SelectedOption != nil {
		fb := &Feedback{
			SelectedOption: *snap.SelectedOption,
			CorrectOption:  q.CorrectOption,
			Correct:        optionMatches(*snap.SelectedOption, q.CorrectOption),
		}
		if q.Explanation != nil {
			fb.Explanation = *q.Explanation
		}
		snap.Feedback = fb
	}

	return snap
}

func (c *Controller) publish(snap Snapshot) {
	c.mu.Lock()
	subs := make([]func(Snapshot), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// publishTimer pushes a fresh snapshot on every tick so subscribers see the
// clock move without a state transition.
func (c *Controller) publishTimer(_ TimerState) {
	c.mu.Lock()
	if c.closed || c.session == nil {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) saveProgress(ctx context.Context, sessionID uuid.UUID, index int, answers []*string) {
	if err := c.cfg.Sessions.SaveProgress(ctx, sessionID, index, answers); err != nil {
		c.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Progress save failed")
		c.reportError(fmt.Errorf("%w: %v", ErrSessionUpdate, err))
	}
}

func (c *Controller) requestAuth() {
	if c.cfg.OnAuthRequired != nil {
		c.cfg.OnAuthRequired()
	}
}

func (c *Controller) reportError(err error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		// Late failure after teardown: drop it.
		return
	}
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

func optionMatches(option string, correct int) bool {
	return strings.TrimSpace(option) == strconv.Itoa(correct)
}
