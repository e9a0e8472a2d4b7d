package preview

import (
	"context"
	"sync"

	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/rs/zerolog"
)

// ConsentReader resolves a visitor's stored consent preferences.
type ConsentReader interface {
	Preferences(ctx context.Context, visitorID string) model.ConsentPreferences
}

// Manager hands out one Gate per visitor, sharing the two storage backends.
type Manager struct {
	mu    sync.Mutex
	gates map[string]*Gate

	max       int
	consent   ConsentReader
	durable   Store
	ephemeral Store
	log       zerolog.Logger
}

// NewManager creates the gate registry.
func NewManager(max int, consent ConsentReader, durable, ephemeral Store, log zerolog.Logger) *Manager {
	return &Manager{
		gates:     make(map[string]*Gate),
		max:       max,
		consent:   consent,
		durable:   durable,
		ephemeral: ephemeral,
		log:       log,
	}
}

// GateFor returns the visitor's gate, creating it on first use.
func (m *Manager) GateFor(visitorID string, onAuthRequired func()) *Gate {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.gates[visitorID]; ok {
		return g
	}
	g := NewGate(GateConfig{
		VisitorID:        visitorID,
		MaxFreeQuestions: m.max,
		Consent: func(ctx context.Context) model.ConsentPreferences {
			return m.consent.Preferences(ctx, visitorID)
		},
		Durable:        m.durable,
		Ephemeral:      m.ephemeral,
		OnAuthRequired: onAuthRequired,
		Log:            m.log,
	})
	m.gates[visitorID] = g
	return g
}
