package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/rs/zerolog"
)

// stubStore is an in-memory Store with injectable failures.
type stubStore struct {
	mu      sync.Mutex
	sets    map[string]map[string]struct{}
	loadErr error
	saveErr error
	saves   int
}

func newStubStore() *stubStore {
	return &stubStore{sets: make(map[string]map[string]struct{})}
}

func (s *stubStore) Load(_ context.Context, visitorID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[string]struct{}, len(s.sets[visitorID]))
	for k := range s.sets[visitorID] {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *stubStore) Save(_ context.Context, visitorID string, set map[string]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	copied := make(map[string]struct{}, len(set))
	for k := range set {
		copied[k] = struct{}{}
	}
	s.sets[visitorID] = copied
	return nil
}

func (s *stubStore) Clear(_ context.Context, visitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, visitorID)
	return nil
}

func (s *stubStore) size(visitorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets[visitorID])
}

type gateFixture struct {
	gate      *Gate
	durable   *stubStore
	ephemeral *stubStore

	mu       sync.Mutex
	analytics bool
	prompts   int
}

func newGateFixture(max int, analytics bool) *gateFixture {
	fx := &gateFixture{
		durable:   newStubStore(),
		ephemeral: newStubStore(),
		analytics: analytics,
	}
	fx.gate = NewGate(GateConfig{
		VisitorID:        "visitor-1",
		MaxFreeQuestions: max,
		Consent: func(context.Context) model.ConsentPreferences {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			return model.ConsentPreferences{Essential: true, Analytics: fx.analytics}
		},
		Durable:   fx.durable,
		Ephemeral: fx.ephemeral,
		OnAuthRequired: func() {
			fx.mu.Lock()
			fx.prompts++
			fx.mu.Unlock()
		},
		Log: zerolog.Nop(),
	})
	return fx
}

func (fx *gateFixture) setAnalytics(v bool) {
	fx.mu.Lock()
	fx.analytics = v
	fx.mu.Unlock()
}

func (fx *gateFixture) promptCount() int {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return fx.prompts
}

func TestGateCapEnforcement(t *testing.T) {
	fx := newGateFixture(20, true)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		qid := fmt.Sprintf("q-%d", i)
		if !fx.gate.CanViewQuestion(ctx, qid) {
			t.Fatalf("question %d blocked below the cap", i)
		}
		fx.gate.MarkViewed(ctx, qid)
	}

	if got := fx.gate.Remaining(ctx); got != 0 {
		t.Errorf("Remaining = %d after 20 views, want 0", got)
	}
	// The 20th view hit the cap and prompted.
	if got := fx.promptCount(); got != 1 {
		t.Errorf("auth prompt fired %d times at the cap, want 1", got)
	}

	// The 21st distinct question is blocked and never recorded.
	if fx.gate.CanViewQuestion(ctx, "q-20") {
		t.Error("question beyond the cap was allowed")
	}
	fx.gate.MarkViewed(ctx, "q-20")
	if got := fx.durable.size("visitor-1"); got != 20 {
		t.Errorf("stored set size = %d, want capped at 20", got)
	}
	// Prompt fires once, not on every further attempt.
	if got := fx.promptCount(); got != 1 {
		t.Errorf("auth prompt fired %d times total, want 1", got)
	}

	// Revisiting an already-seen question stays allowed.
	if !fx.gate.CanViewQuestion(ctx, "q-3") {
		t.Error("previously viewed question blocked at the cap")
	}
}

func TestGateAuthenticatedBypassesCap(t *testing.T) {
	fx := newGateFixture(2, true)
	ctx := context.Background()
	fx.gate.SetAuthenticated(true)

	for i := 0; i < 10; i++ {
		qid := fmt.Sprintf("q-%d", i)
		if !fx.gate.CanViewQuestion(ctx, qid) {
			t.Fatalf("question %d blocked for an authenticated visitor", i)
		}
		fx.gate.MarkViewed(ctx, qid)
	}

	if got := fx.promptCount(); got != 0 {
		t.Errorf("auth prompt fired %d times for an authenticated visitor, want 0", got)
	}
	// Views are still recorded past the cap while authenticated.
	if got := fx.durable.size("visitor-1"); got != 10 {
		t.Errorf("stored set size = %d, want 10", got)
	}
}

func TestGateConsentSelectsStore(t *testing.T) {
	fx := newGateFixture(20, false)
	ctx := context.Background()

	fx.gate.MarkViewed(ctx, "q-0")
	if fx.durable.size("visitor-1") != 0 {
		t.Error("durable store written without analytics consent")
	}
	if fx.ephemeral.size("visitor-1") != 1 {
		t.Error("ephemeral store not written without analytics consent")
	}

	// Consent granted mid-session: the very next operation goes durable.
	fx.setAnalytics(true)
	fx.gate.MarkViewed(ctx, "q-1")
	if fx.durable.size("visitor-1") == 0 {
		t.Error("durable store not written after consent was granted")
	}

	// Consent revoked again: durable is left alone, ephemeral takes over.
	fx.setAnalytics(false)
	before := fx.durable.size("visitor-1")
	fx.gate.MarkViewed(ctx, "q-2")
	if fx.durable.size("visitor-1") != before {
		t.Error("durable store written after consent was revoked")
	}
}

func TestGateDegradesOnDurableFailure(t *testing.T) {
	fx := newGateFixture(20, true)
	ctx := context.Background()

	fx.durable.saveErr = errors.New("quota exceeded")
	fx.gate.MarkViewed(ctx, "q-0")

	// The view survived in the ephemeral store; the visitor is unaffected.
	if !fx.gate.IsQuestionViewed(ctx, "q-0") {
		t.Error("view lost after durable write failure")
	}
	if fx.ephemeral.size("visitor-1") != 1 {
		t.Error("ephemeral store not used as fallback")
	}

	// The gate stays degraded even though the durable store recovered.
	fx.durable.saveErr = nil
	fx.gate.MarkViewed(ctx, "q-1")
	if fx.durable.size("visitor-1") != 0 {
		t.Error("degraded gate wrote to the durable store again")
	}
}

func TestGateDegradesOnDurableLoadFailure(t *testing.T) {
	fx := newGateFixture(20, true)
	ctx := context.Background()

	fx.durable.loadErr = errors.New("connection refused")
	fx.gate.MarkViewed(ctx, "q-0")

	if !fx.gate.IsQuestionViewed(ctx, "q-0") {
		t.Error("view lost after durable load failure")
	}
	if got := fx.gate.Remaining(ctx); got != 19 {
		t.Errorf("Remaining = %d after one view, want 19", got)
	}
}

func TestGateReset(t *testing.T) {
	fx := newGateFixture(2, true)
	ctx := context.Background()

	fx.gate.MarkViewed(ctx, "q-0")
	fx.gate.MarkViewed(ctx, "q-1")
	if got := fx.promptCount(); got != 1 {
		t.Fatalf("auth prompt fired %d times at the cap, want 1", got)
	}

	if err := fx.gate.Reset(ctx); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if got := fx.gate.Remaining(ctx); got != 2 {
		t.Errorf("Remaining = %d after reset, want 2", got)
	}
	if fx.durable.size("visitor-1") != 0 || fx.ephemeral.size("visitor-1") != 0 {
		t.Error("reset left entries behind in a store")
	}

	// The prompt may fire again after a reset.
	fx.gate.MarkViewed(ctx, "q-0")
	fx.gate.MarkViewed(ctx, "q-1")
	if got := fx.promptCount(); got != 2 {
		t.Errorf("auth prompt fired %d times after reset cycle, want 2", got)
	}
}

func TestManagerSharesGatePerVisitor(t *testing.T) {
	durable := newStubStore()
	ephemeral := newStubStore()
	consent := consentReaderFunc(func(context.Context, string) model.ConsentPreferences {
		return model.DefaultConsent()
	})
	m := NewManager(20, consent, durable, ephemeral, zerolog.Nop())

	a := m.GateFor("visitor-a", nil)
	if m.GateFor("visitor-a", nil) != a {
		t.Error("GateFor returned a new gate for the same visitor")
	}
	if m.GateFor("visitor-b", nil) == a {
		t.Error("GateFor shared a gate across visitors")
	}
}

type consentReaderFunc func(ctx context.Context, visitorID string) model.ConsentPreferences

func (f consentReaderFunc) Preferences(ctx context.Context, visitorID string) model.ConsentPreferences {
	return f(ctx, visitorID)
}
