package session

import (
	"context"
	"sync"
)

// Gate is a one-shot signal. It moves from unset to set exactly once;
// waiting on a set gate returns immediately.
type Gate struct {
	ch   chan struct{}
	once sync.Once
}

// NewGate returns an unset gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Set fires the gate. Calls after the first are no-ops.
func (g *Gate) Set() {
	g.once.Do(func() { close(g.ch) })
}

// IsSet reports whether the gate has fired.
func (g *Gate) IsSet() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the gate fires.
func (g *Gate) Done() <-chan struct{} {
	return g.ch
}

// Wait blocks until the gate fires or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
