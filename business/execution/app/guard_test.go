package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fd1az/flashloan-executor/internal/apperror"
)

func TestMemoryGuard_SingleFlight(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()
	deadline := time.Now().Add(time.Minute)

	release, err := g.Acquire(ctx, "opp-1", deadline)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	if _, err := g.Acquire(ctx, "opp-1", deadline); !apperror.HasCode(err, apperror.CodeDuplicateExecution) {
		t.Fatalf("second Acquire error = %v, want DUPLICATE_EXECUTION", err)
	}

	other, err := g.Acquire(ctx, "opp-2", deadline)
	if err != nil {
		t.Fatalf("distinct id rejected: %v", err)
	}
	other()

	release()
	release() // idempotent

	if g.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", g.InFlight())
	}
	again, err := g.Acquire(ctx, "opp-1", deadline)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}

func TestMemoryGuard_ConcurrentClaims(t *testing.T) {
	g := NewMemoryGuard()

	var (
		wg        sync.WaitGroup
		attempted sync.WaitGroup
		winners   atomic.Int32
		start     = make(chan struct{})
		hold      = make(chan struct{})
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		attempted.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, err := g.Acquire(context.Background(), "same", time.Now().Add(time.Minute))
			attempted.Done()
			if err != nil {
				return
			}
			winners.Add(1)
			<-hold
			release()
		}()
	}

	close(start)
	attempted.Wait()
	close(hold)
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("winners = %d, want 1", winners.Load())
	}
}
