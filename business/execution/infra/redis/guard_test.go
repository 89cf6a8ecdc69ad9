package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/flashloan-executor/internal/apperror"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

func TestGuard_UnreachableBackend(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	g := NewGuard(rdb, time.Minute, &mockLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	release, err := g.Acquire(ctx, "opp-1", time.Now().Add(time.Minute))
	if err == nil {
		release()
		t.Fatal("expected error from unreachable redis")
	}
	if !apperror.HasCode(err, apperror.CodeGuardError) {
		t.Errorf("expected GUARD_ERROR, got %v", err)
	}
	if apperror.HasCode(err, apperror.CodeDuplicateExecution) {
		t.Error("backend failure must not be reported as a duplicate")
	}

	if err := g.Ping(ctx); err == nil {
		t.Error("Ping() should fail against an unreachable backend")
	}
}

// stubRedis records SET NX and script calls. Methods the guard does not use
// fall through to the nil embedded client.
type stubRedis struct {
	redis.UniversalClient

	mu       sync.Mutex
	held     bool
	lastTTL  time.Duration
	releases atomic.Int32
}

func (s *stubRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTTL = expiration
	if s.held {
		return redis.NewBoolResult(false, nil)
	}
	s.held = true
	return redis.NewBoolResult(true, nil)
}

func (s *stubRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	s.releases.Add(1)
	s.mu.Lock()
	s.held = false
	s.mu.Unlock()
	return redis.NewCmdResult(int64(1), nil)
}

func (s *stubRedis) ttl() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTTL
}

func TestGuard_ClaimOutlivesDeadline(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		until   time.Duration
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"deadline_within_ttl", 10 * time.Minute, time.Minute, 10 * time.Minute, 10 * time.Minute},
		{"deadline_beyond_ttl", 10 * time.Minute, time.Hour, time.Hour + deadlineMargin - time.Second, time.Hour + deadlineMargin},
		{"no_ttl_configured", 0, -time.Minute, deadlineMargin, deadlineMargin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb := &stubRedis{}
			g := NewGuard(rdb, tt.ttl, &mockLogger{})

			release, err := g.Acquire(context.Background(), "opp-ttl", time.Now().Add(tt.until))
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			defer release()

			if got := rdb.ttl(); got < tt.wantMin || got > tt.wantMax {
				t.Errorf("claim ttl = %v, want within [%v, %v]", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestGuard_DuplicateAndRelease(t *testing.T) {
	rdb := &stubRedis{}
	g := NewGuard(rdb, time.Minute, &mockLogger{})
	ctx := context.Background()
	deadline := time.Now().Add(time.Minute)

	release, err := g.Acquire(ctx, "opp-dup", deadline)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := g.Acquire(ctx, "opp-dup", deadline); !apperror.HasCode(err, apperror.CodeDuplicateExecution) {
		t.Fatalf("second Acquire error = %v, want DUPLICATE_EXECUTION", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release()
		}()
	}
	wg.Wait()

	if got := rdb.releases.Load(); got != 1 {
		t.Errorf("release ran %d times, want 1", got)
	}
	again, err := g.Acquire(ctx, "opp-dup", deadline)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}
