// Package preview enforces the freemium preview limit: it tracks which
// questions an unauthenticated visitor has seen and gates further access
// behind authentication once the cap is reached.
package preview

import (
	"context"
	"sync"

	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/rs/zerolog"
)

// ConsentFunc reads the visitor's current consent preferences. Called on
// every gate operation; consent may change mid-session.
type ConsentFunc func(ctx context.Context) model.ConsentPreferences

// GateConfig wires a Gate for one visitor.
type GateConfig struct {
	VisitorID        string
	MaxFreeQuestions int
	Consent          ConsentFunc
	Durable          Store
	Ephemeral        Store
	// OnAuthRequired fires exactly once, when the cap is reached while
	// unauthenticated.
	OnAuthRequired func()
	Log            zerolog.Logger
}

// Gate tracks one visitor's viewed-question set with a consent-scoped
// storage policy: analytics consent selects the durable store, anything
// else the ephemeral one. The choice is made per operation, never cached.
type Gate struct {
	mu  sync.Mutex
	cfg GateConfig
	log zerolog.Logger

	authenticated bool
	// degraded flips after a durable write failure; the gate stays on the
	// ephemeral store for the remainder of the session.
	degraded bool
	prompted bool
}

// NewGate creates a gate for a single visitor.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{
		cfg: cfg,
		log: cfg.Log.With().Str("component", "preview_gate").Str("visitor_id", cfg.VisitorID).Logger(),
	}
}

// SetAuthenticated updates the externally supplied signed-in status. Once
// authenticated, the cap no longer applies.
func (g *Gate) SetAuthenticated(authenticated bool) {
	g.mu.Lock()
	g.authenticated = authenticated
	g.mu.Unlock()
}

// IsQuestionViewed reports whether this visitor has already seen a question.
func (g *Gate) IsQuestionViewed(ctx context.Context, questionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.loadLocked(ctx)
	_, ok := set[questionID]
	return ok
}

// MarkViewed records a question view. For an unauthenticated visitor the
// set never grows beyond the cap; the view that would exceed it triggers
// the auth prompt instead.
func (g *Gate) MarkViewed(ctx context.Context, questionID string) {
	g.mu.Lock()

	set := g.loadLocked(ctx)
	if _, ok := set[questionID]; ok {
		g.mu.Unlock()
		return
	}

	if !g.authenticated && len(set) >= g.cfg.MaxFreeQuestions {
		prompt := g.promptOnceLocked()
		g.mu.Unlock()
		if prompt {
			g.fireAuthPrompt()
		}
		return
	}

	set[questionID] = struct{}{}
	g.saveLocked(ctx, set)

	prompt := false
	if !g.authenticated && len(set) >= g.cfg.MaxFreeQuestions {
		prompt = g.promptOnceLocked()
	}
	g.mu.Unlock()

	if prompt {
		g.fireAuthPrompt()
	}
}

// CanViewQuestion reports whether a question may be shown: always when
// authenticated or already viewed, otherwise only below the cap.
func (g *Gate) CanViewQuestion(ctx context.Context, questionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.authenticated {
		return true
	}
	set := g.loadLocked(ctx)
	if _, ok := set[questionID]; ok {
		return true
	}
	return len(set) < g.cfg.MaxFreeQuestions
}

// CanViewMore reports whether any unseen question may still be shown.
func (g *Gate) CanViewMore(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.authenticated {
		return true
	}
	set := g.loadLocked(ctx)
	return len(set) < g.cfg.MaxFreeQuestions
}

// Remaining returns how many free question views are left.
func (g *Gate) Remaining(ctx context.Context) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.loadLocked(ctx)
	remaining := g.cfg.MaxFreeQuestions - len(set)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the set from both the active store and backing persistence,
// e.g. on sign-in or an explicit visitor reset.
func (g *Gate) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.cfg.Ephemeral.Clear(ctx, g.cfg.VisitorID); err != nil {
		return err
	}
	if err := g.cfg.Durable.Clear(ctx, g.cfg.VisitorID); err != nil {
		return err
	}
	g.degraded = false
	g.prompted = false
	return nil
}

// selectStoreLocked applies the storage policy: analytics consent is the
// sole gate for durable tracking. A degraded gate stays ephemeral.
func (g *Gate) selectStoreLocked(ctx context.Context) Store {
	if g.degraded {
		return g.cfg.Ephemeral
	}
	if g.cfg.Consent(ctx).Analytics {
		return g.cfg.Durable
	}
	return g.cfg.Ephemeral
}

func (g *Gate) loadLocked(ctx context.Context) map[string]struct{} {
	set, err := g.selectStoreLocked(ctx).Load(ctx, g.cfg.VisitorID)
	if err != nil {
		g.log.Warn().Err(err).Msg("Viewed-set load failed, falling back to ephemeral store")
		g.degraded = true
		set, err = g.cfg.Ephemeral.Load(ctx, g.cfg.VisitorID)
		if err != nil {
			return make(map[string]struct{})
		}
	}
	return set
}

func (g *Gate) saveLocked(ctx context.Context, set map[string]struct{}) {
	store := g.selectStoreLocked(ctx)
	if err := store.Save(ctx, g.cfg.VisitorID, set); err != nil {
		// Storage quota or connectivity issue: degrade silently, the exam
		// must not be interrupted.
		g.log.Warn().Err(err).Msg("Viewed-set write failed, falling back to ephemeral store")
		g.degraded = true
		if err := g.cfg.Ephemeral.Save(ctx, g.cfg.VisitorID, set); err != nil {
			g.log.Error().Err(err).Msg("Ephemeral viewed-set write failed")
		}
	}
}

func (g *Gate) promptOnceLocked() bool {
	if g.prompted {
		return false
	}
	g.prompted = true
	return true
}

func (g *Gate) fireAuthPrompt() {
	if g.cfg.OnAuthRequired != nil {
		g.cfg.OnAuthRequired()
	}
}
