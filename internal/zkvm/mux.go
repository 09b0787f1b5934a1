package zkvm

import (
	"context"
	"sync"

	"resourcemachine/internal/digest"
)

// Mux routes programs to engines by id, falling back to a default engine. It lets a
// deployment prove selected programs with Groth16 while the rest run elsewhere.
type Mux struct {
	mu       sync.RWMutex
	fallback Engine
	routes   map[digest.Digest]Engine
}

func NewMux(fallback Engine) *Mux {
	return &Mux{fallback: fallback, routes: make(map[digest.Digest]Engine)}
}

// Handle routes programID to engine.
func (m *Mux) Handle(programID digest.Digest, engine Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[programID] = engine
}

func (m *Mux) engine(programID digest.Digest) Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.routes[programID]; ok {
		return e
	}
	return m.fallback
}

func (m *Mux) Prove(ctx context.Context, programID digest.Digest, witness []byte) (*Receipt, error) {
	return m.engine(programID).Prove(ctx, programID, witness)
}

func (m *Mux) Verify(ctx context.Context, programID digest.Digest, journal, seal []byte) error {
	return m.engine(programID).Verify(ctx, programID, journal, seal)
}
