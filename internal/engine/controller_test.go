package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/rs/zerolog"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type saveCall struct {
	sessionID uuid.UUID
	index     int
	answers   []*string
}

type fakeStore struct {
	mu          sync.Mutex
	resume      *model.ExamSession
	createErr   error
	completeErr error

	created   int
	saves     []saveCall
	completes int

	saved     chan struct{}
	completed chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:     make(chan struct{}, 16),
		completed: make(chan struct{}, 16),
	}
}

func (f *fakeStore) CreateSession(_ context.Context, examID uuid.UUID, visitorID string) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &model.ExamSession{
		ID:        uuid.New(),
		ExamID:    examID,
		VisitorID: visitorID,
		StartedAt: time.Now(),
	}, nil
}

func (f *fakeStore) ResumeSession(context.Context, uuid.UUID, string) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resume, nil
}

func (f *fakeStore) SaveProgress(_ context.Context, sessionID uuid.UUID, index int, answers []*string) error {
	f.mu.Lock()
	f.saves = append(f.saves, saveCall{sessionID, index, answers})
	f.mu.Unlock()
	f.saved <- struct{}{}
	return nil
}

func (f *fakeStore) CompleteSession(context.Context, uuid.UUID, int, int) error {
	f.mu.Lock()
	f.completes++
	err := f.completeErr
	f.mu.Unlock()
	f.completed <- struct{}{}
	return err
}

func (f *fakeStore) completeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completes
}

func (f *fakeStore) lastSave() saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[len(f.saves)-1]
}

type fakeContent struct {
	exam      *model.Exam
	questions []model.Question
	examErr   error
}

func (f *fakeContent) Exam(context.Context, uuid.UUID) (*model.Exam, error) {
	if f.examErr != nil {
		return nil, f.examErr
	}
	return f.exam, nil
}

func (f *fakeContent) Questions(context.Context, uuid.UUID) ([]model.Question, error) {
	return f.questions, nil
}

// fakeGate mirrors the preview gate semantics: a cap on distinct viewed
// questions, lifted entirely when max is zero or negative.
type fakeGate struct {
	mu     sync.Mutex
	max    int
	viewed map[string]struct{}
}

func newFakeGate(max int) *fakeGate {
	return &fakeGate{max: max, viewed: make(map[string]struct{})}
}

func (g *fakeGate) CanViewQuestion(_ context.Context, questionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.max <= 0 {
		return true
	}
	if _, ok := g.viewed[questionID]; ok {
		return true
	}
	return len(g.viewed) < g.max
}

func (g *fakeGate) MarkViewed(_ context.Context, questionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.max > 0 && len(g.viewed) >= g.max {
		if _, ok := g.viewed[questionID]; !ok {
			return
		}
	}
	g.viewed[questionID] = struct{}{}
}

func (g *fakeGate) Remaining(context.Context) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.max <= 0 {
		return 1000
	}
	r := g.max - len(g.viewed)
	if r < 0 {
		return 0
	}
	return r
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func testQuestions(n int) []model.Question {
	examID := uuid.New()
	questions := make([]model.Question, n)
	for i := range questions {
		domain := "Networking"
		if i%2 == 1 {
			domain = "Security"
		}
		explanation := "Review the study guide."
		questions[i] = model.Question{
			ID:            uuid.New(),
			ExamID:        examID,
			QuestionText:  "question text",
			Options:       []string{"a", "b", "c", "d"},
			CorrectOption: i % 4,
			Explanation:   &explanation,
			Domain:        &domain,
			OrderNum:      i,
		}
	}
	return questions
}

type fixture struct {
	store   *fakeStore
	content *fakeContent
	gate    *fakeGate
	ctrl    *Controller

	mu          sync.Mutex
	authPrompts int
	errorsSeen  []error
}

func newFixture(t *testing.T, questionCount, gateMax int) *fixture {
	t.Helper()
	fx := &fixture{
		store: newFakeStore(),
		content: &fakeContent{
			exam: &model.Exam{
				ID:              uuid.New(),
				Title:           "Practice Exam",
				DurationMinutes: 1,
				QuestionCount:   questionCount,
			},
			questions: testQuestions(questionCount),
		},
		gate: newFakeGate(gateMax),
	}
	fx.ctrl = NewController(Config{
		Sessions:     fx.store,
		Content:      fx.content,
		Gate:         fx.gate,
		VisitorID:    "visitor-1",
		Log:          zerolog.Nop(),
		TickInterval: -1,
		OnAuthRequired: func() {
			fx.mu.Lock()
			fx.authPrompts++
			fx.mu.Unlock()
		},
		OnError: func(err error) {
			fx.mu.Lock()
			fx.errorsSeen = append(fx.errorsSeen, err)
			fx.mu.Unlock()
		},
	})
	return fx
}

func (fx *fixture) waitSaved(t *testing.T) {
	t.Helper()
	select {
	case <-fx.store.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SaveProgress")
	}
}

func (fx *fixture) waitCompleted(t *testing.T) {
	t.Helper()
	select {
	case <-fx.store.completed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for CompleteSession")
	}
}

func (fx *fixture) promptCount() int {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return fx.authPrompts
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestControllerStart(t *testing.T) {
	fx := newFixture(t, 3, 0)
	ctx := context.Background()

	if err := fx.ctrl.Start(ctx, fx.content.exam.ID); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	snap := fx.ctrl.State()
	if snap.Phase != PhaseInProgress {
		t.Errorf("Phase = %s, want IN_PROGRESS", snap.Phase)
	}
	if snap.CurrentIndex != 0 || snap.QuestionCount != 3 {
		t.Errorf("position = %d/%d, want 0/3", snap.CurrentIndex, snap.QuestionCount)
	}
	if snap.Timer.TotalSeconds != 60 {
		t.Errorf("Timer.TotalSeconds = %d, want 60", snap.Timer.TotalSeconds)
	}
	if snap.Question == nil {
		t.Fatal("snapshot carries no question")
	}
	if snap.CanGoBack {
		t.Error("CanGoBack = true on the first question")
	}
	if fx.store.created != 1 {
		t.Errorf("CreateSession called %d times, want 1", fx.store.created)
	}
	if !fx.gate.CanViewQuestion(ctx, fx.content.questions[0].ID.String()) {
		t.Error("first question was not marked viewed")
	}
}

func TestControllerStartContentFailure(t *testing.T) {
	fx := newFixture(t, 2, 0)
	fx.content.examErr = errors.New("boom")

	err := fx.ctrl.Start(context.Background(), fx.content.exam.ID)
	if !errors.Is(err, ErrContentFetch) {
		t.Fatalf("Start = %v, want ErrContentFetch", err)
	}
	if fx.ctrl.Phase() != PhaseNotStarted {
		t.Errorf("Phase = %s after failed start, want NOT_STARTED", fx.ctrl.Phase())
	}
}

func TestControllerStartResumesSession(t *testing.T) {
	fx := newFixture(t, 3, 0)
	one := "1"
	fx.store.resume = &model.ExamSession{
		ID:           uuid.New(),
		ExamID:       fx.content.exam.ID,
		VisitorID:    "visitor-1",
		CurrentIndex: 1,
		Answers:      []*string{&one, nil, nil},
		StartedAt:    time.Now().Add(-30 * time.Second),
	}

	if err := fx.ctrl.Start(context.Background(), fx.content.exam.ID); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	snap := fx.ctrl.State()
	if snap.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d after resume, want 1", snap.CurrentIndex)
	}
	// 60s allotted, ~30s elapsed: the clock must resume near 30, never 60.
	if snap.Timer.TotalSeconds > 31 || snap.Timer.TotalSeconds < 28 {
		t.Errorf("Timer.TotalSeconds = %d after resume, want about 30", snap.Timer.TotalSeconds)
	}
	if fx.store.created != 0 {
		t.Error("CreateSession called despite an active session to resume")
	}
	if got, ok := fx.ctrl.answers.Get(0); !ok || got != "1" {
		t.Errorf("restored answer = (%q, %v), want (\"1\", true)", got, ok)
	}
}

func TestControllerStartExpiredResumeFinishesImmediately(t *testing.T) {
	fx := newFixture(t, 2, 0)
	fx.store.resume = &model.ExamSession{
		ID:        uuid.New(),
		ExamID:    fx.content.exam.ID,
		VisitorID: "visitor-1",
		StartedAt: time.Now().Add(-10 * time.Minute),
	}

	if err := fx.ctrl.Start(context.Background(), fx.content.exam.ID); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	fx.waitCompleted(t)

	if fx.ctrl.Phase() != PhaseCompleted {
		t.Errorf("Phase = %s for an expired resume, want COMPLETED", fx.ctrl.Phase())
	}
	res := fx.ctrl.Result()
	if res == nil {
		t.Fatal("no result after immediate finish")
	}
	if res.Percent != 0 {
		t.Errorf("Percent = %d with no answers, want 0", res.Percent)
	}
}

func TestControllerSubmitAndFeedback(t *testing.T) {
	fx := newFixture(t, 3, 0)
	ctx := context.Background()
	if err := fx.ctrl.Start(ctx, fx.content.exam.ID); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	// Question 0 has correct option 0.
	if err := fx.ctrl.SubmitAnswer(ctx, "0"); err != nil {
		t.Fatalf("SubmitAnswer returned error: %v", err)
	}
	fx.waitSaved(t)

	snap := fx.ctrl.State()
	if snap.Phase != PhaseAwaitingFeedback {
		t.Errorf("Phase = %s after submit, want AWAITING_FEEDBACK", snap.Phase)
	}
	if snap.Feedback == nil {
		t.Fatal("no feedback after submit")
	}
	if !snap.Feedback.Correct {
		t.Error("Feedback.Correct = false for the correct option")
	}
	if snap.Feedback.Explanation == "" {
		t.Error("feedback lost the explanation")
	}

	save := fx.store.lastSave()
	if save.index != 0 {
		t.Errorf("saved index = %d, want 0", save.index)
	}
	if save.answers[0] == nil || *save.answers[0] != "0" {
		t.Error("saved answers do not include the submission")
	}

	// The clock must be frozen during feedback.
	if fx.ctrl.timer.tick(currentToken(fx.ctrl.timer)) {
		t.Error("timer accepted a tick while feedback is displayed")
	}

	// Submitting again without advancing is a phase violation.
	if err := fx.ctrl.SubmitAnswer(ctx, "1"); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("second submit = %v, want ErrInvalidPhase", err)
	}
}

func TestControllerAdvanceResumesClock(t *testing.T) {
	fx := newFixture(t, 3, 0)
	ctx := context.Background()
	fx.ctrl.Start(ctx, fx.content.exam.ID)
	fx.ctrl.SubmitAnswer(ctx, "0")
	fx.waitSaved(t)

	if err := fx.ctrl.Advance(ctx); err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	fx.waitSaved(t)

	snap := fx.ctrl.State()
	if snap.Phase != PhaseInProgress || snap.CurrentIndex != 1 {
		t.Errorf("state = %s@%d after advance, want IN_PROGRESS@1", snap.Phase, snap.CurrentIndex)
	}
	if !snap.CanGoBack {
		t.Error("CanGoBack = false past the first question")
	}
	if !fx.ctrl.timer.tick(currentToken(fx.ctrl.timer)) {
		t.Error("timer did not resume after advance")
	}
}

func TestControllerGoBackRestoresAnswer(t *testing.T) {
	fx := newFixture(t, 3, 0)
	ctx := context.Background()
	fx.ctrl.Start(ctx, fx.content.exam.ID)

	if err := fx.ctrl.GoBack(ctx); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("GoBack at index 0 = %v, want ErrInvalidPhase", err)
	}

	fx.ctrl.SubmitAnswer(ctx, "2")
	fx.waitSaved(t)
	fx.ctrl.Advance(ctx)
	fx.waitSaved(t)

	if err := fx.ctrl.GoBack(ctx); err != nil {
		t.Fatalf("GoBack returned error: %v", err)
	}
	fx.waitSaved(t)

	snap := fx.ctrl.State()
	if snap.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d after back, want 0", snap.CurrentIndex)
	}
	if snap.SelectedOption == nil || *snap.SelectedOption != "2" {
		t.Error("previous answer not restored on back navigation")
	}
	if snap.Feedback != nil {
		t.Error("feedback still present after back navigation")
	}
}

func TestControllerAdvancePastLastQuestionFinishes(t *testing.T) {
	fx := newFixture(t, 2, 0)
	ctx := context.Background()
	fx.ctrl.Start(ctx, fx.content.exam.ID)

	fx.ctrl.SubmitAnswer(ctx, "0") // correct
	fx.waitSaved(t)
	fx.ctrl.Advance(ctx)
	fx.waitSaved(t)
	fx.ctrl.SubmitAnswer(ctx, "0") // wrong, correct is 1
	fx.waitSaved(t)

	if err := fx.ctrl.Advance(ctx); err != nil {
		t.Fatalf("final Advance returned error: %v", err)
	}
	fx.waitCompleted(t)

	snap := fx.ctrl.State()
	if snap.Phase != PhaseCompleted {
		t.Fatalf("Phase = %s, want COMPLETED", snap.Phase)
	}
	if snap.Result == nil {
		t.Fatal("no result on the completed snapshot")
	}
	if snap.Result.Percent != 50 {
		t.Errorf("Percent = %d for 1/2 correct, want 50", snap.Result.Percent)
	}
	if snap.Question != nil {
		t.Error("completed snapshot still exposes a question")
	}
}

func TestControllerFinishIsIdempotent(t *testing.T) {
	fx := newFixture(t, 2, 0)
	ctx := context.Background()
	fx.ctrl.Start(ctx, fx.content.exam.ID)

	if err := fx.ctrl.Finish(ctx); err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}
	fx.waitCompleted(t)

	if err := fx.ctrl.Finish(ctx); err != nil {
		t.Fatalf("second Finish returned error: %v", err)
	}
	// Give a hypothetical duplicate persist a moment to appear.
	time.Sleep(50 * time.Millisecond)
	if got := fx.store.completeCount(); got != 1 {
		t.Errorf("CompleteSession called %d times, want exactly 1", got)
	}
}

func TestControllerTimerExpiryFinishesOnce(t *testing.T) {
	fx := newFixture(t, 2, 0)
	ctx := context.Background()
	fx.ctrl.Start(ctx, fx.content.exam.ID)

	tok := currentToken(fx.ctrl.timer)
	for fx.ctrl.timer.tick(tok) {
	}
	fx.waitCompleted(t)

	if fx.ctrl.Phase() != PhaseCompleted {
		t.Fatalf("Phase = %s after expiry, want COMPLETED", fx.ctrl.Phase())
	}
	res := fx.ctrl.Result()
	if res == nil {
		t.Fatal("no result after expiry")
	}
	if res.TimeSpentSeconds != 60 {
		t.Errorf("TimeSpentSeconds = %d after full countdown, want 60", res.TimeSpentSeconds)
	}
	time.Sleep(50 * time.Millisecond)
	if got := fx.store.completeCount(); got != 1 {
		t.Errorf("CompleteSession called %d times after expiry, want exactly 1", got)
	}
}

func TestControllerPreviewGating(t *testing.T) {
	// Cap of 1: the first question consumes the whole budget.
	fx := newFixture(t, 3, 1)
	ctx := context.Background()
	fx.ctrl.Start(ctx, fx.content.exam.ID)

	fx.ctrl.SubmitAnswer(ctx, "0")
	fx.waitSaved(t)
	if err := fx.ctrl.Advance(ctx); err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	fx.waitSaved(t)

	snap := fx.ctrl.State()
	if !snap.Gated {
		t.Error("second question not gated with an exhausted budget")
	}
	if fx.promptCount() == 0 {
		t.Error("auth prompt never fired for the gated question")
	}

	// Submitting against a gated question is rejected.
	if err := fx.ctrl.SubmitAnswer(ctx, "1"); !errors.Is(err, ErrPreviewLimited) {
		t.Errorf("gated submit = %v, want ErrPreviewLimited", err)
	}
}

func TestControllerCompleteFailureSurfaces(t *testing.T) {
	fx := newFixture(t, 2, 0)
	fx.store.completeErr = errors.New("db down")
	ctx := context.Background()
	fx.ctrl.Start(ctx, fx.content.exam.ID)

	fx.ctrl.Finish(ctx)
	fx.waitCompleted(t)
	time.Sleep(50 * time.Millisecond)

	// The session still completes locally; the failure is reported, not fatal.
	if fx.ctrl.Phase() != PhaseCompleted {
		t.Errorf("Phase = %s, want COMPLETED despite persist failure", fx.ctrl.Phase())
	}
	fx.mu.Lock()
	defer fx.mu.Unlock()
	if len(fx.errorsSeen) == 0 {
		t.Fatal("persist failure was never reported")
	}
	if !errors.Is(fx.errorsSeen[0], ErrSessionUpdate) {
		t.Errorf("reported error = %v, want ErrSessionUpdate", fx.errorsSeen[0])
	}
}

func TestControllerClose(t *testing.T) {
	fx := newFixture(t, 2, 0)
	ctx := context.Background()
	fx.ctrl.Start(ctx, fx.content.exam.ID)
	fx.ctrl.Close()

	if err := fx.ctrl.SubmitAnswer(ctx, "0"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SubmitAnswer after close = %v, want ErrSessionClosed", err)
	}
	if err := fx.ctrl.Finish(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Finish after close = %v, want ErrSessionClosed", err)
	}
	if fx.ctrl.timer.tick(currentToken(fx.ctrl.timer)) {
		t.Error("timer still ticking after close")
	}
}

func TestControllerSubscribe(t *testing.T) {
	fx := newFixture(t, 2, 0)
	ctx := context.Background()

	var mu sync.Mutex
	var phases []Phase
	fx.ctrl.Subscribe(func(snap Snapshot) {
		mu.Lock()
		phases = append(phases, snap.Phase)
		mu.Unlock()
	})

	fx.ctrl.Start(ctx, fx.content.exam.ID)
	fx.ctrl.SubmitAnswer(ctx, "0")
	fx.waitSaved(t)

	mu.Lock()
	defer mu.Unlock()
	if len(phases) < 2 {
		t.Fatalf("subscriber saw %d snapshots, want at least 2", len(phases))
	}
	if phases[0] != PhaseInProgress || phases[len(phases)-1] != PhaseAwaitingFeedback {
		t.Errorf("subscriber phases = %v", phases)
	}
}
