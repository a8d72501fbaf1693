package phase

import (
	"context"
	"sync"

	"electsys/contexts/enrollment/election-engine/ports"
)

// Gate is the in-memory phase gate used by tests and single-process wiring.
// Production wiring passes the postgres-backed gate instead, so the API and
// the ballot worker read the same phase state across processes.
type Gate struct {
	mu   sync.RWMutex
	open bool
}

func NewGate(open bool) *Gate {
	return &Gate{open: open}
}

func (g *Gate) OpenPhase(_ context.Context) error {
	g.mu.Lock()
	g.open = true
	g.mu.Unlock()
	return nil
}

func (g *Gate) ClosePhase(_ context.Context) error {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
	return nil
}

func (g *Gate) PhaseOpen(_ context.Context) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.open, nil
}

var _ ports.PhaseGate = (*Gate)(nil)
