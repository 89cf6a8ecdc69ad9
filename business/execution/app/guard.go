package app

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/flashloan-executor/internal/apperror"
)

// MemoryGuard is the in-process single-flight table.
type MemoryGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard creates an empty guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{inflight: make(map[string]struct{})}
}

// Acquire claims id until the returned release func is called. The claim
// lives in process memory, so deadline needs no expiry.
func (g *MemoryGuard) Acquire(_ context.Context, id string, _ time.Time) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inflight[id]; held {
		return nil, apperror.New(apperror.CodeDuplicateExecution,
			apperror.WithContext("opportunity "+id+" already in flight"))
	}
	g.inflight[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, id)
			g.mu.Unlock()
		})
	}, nil
}

// InFlight returns the number of held ids.
func (g *MemoryGuard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}
