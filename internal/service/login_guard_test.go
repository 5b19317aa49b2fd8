package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type guardUnderTest struct {
	name  string
	guard LoginAttemptGuard
	clock *fakeClock
}

func newGuardsUnderTest(t *testing.T, policy LoginPolicy) []guardUnderTest {
	t.Helper()

	memClock := newFakeClock()
	mem := NewInMemoryLoginAttemptGuard(policy)
	mem.now = memClock.Now

	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisClock := newFakeClock()
	rg := NewRedisLoginAttemptGuard(client, "test", policy)
	rg.now = redisClock.Now

	return []guardUnderTest{
		{name: "memory", guard: mem, clock: memClock},
		{name: "redis", guard: rg, clock: redisClock},
	}
}

func TestLoginAttemptGuardLocksAtThreshold(t *testing.T) {
	for _, tc := range newGuardsUnderTest(t, DefaultLoginPolicy()) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			id := "lock@example.com"
			for i := 1; i <= 4; i++ {
				locked, err := tc.guard.RecordFailure(ctx, id)
				if err != nil {
					t.Fatalf("failure %d: %v", i, err)
				}
				if locked {
					t.Fatalf("unexpected lock after %d failures", i)
				}
				tc.clock.Advance(5 * time.Second)
			}
			locked, err := tc.guard.RecordFailure(ctx, id)
			if err != nil || !locked {
				t.Fatalf("expected lock on 5th failure, locked=%v err=%v", locked, err)
			}
			if locked, _ := tc.guard.IsLocked(ctx, id); !locked {
				t.Fatal("expected IsLocked after threshold")
			}
			if locked, _ := tc.guard.IsLocked(ctx, "other@example.com"); locked {
				t.Fatal("expected other identity unaffected")
			}
		})
	}
}

func TestLoginAttemptGuardLockExpiresLazily(t *testing.T) {
	for _, tc := range newGuardsUnderTest(t, DefaultLoginPolicy()) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			id := "expire@example.com"
			for i := 0; i < 5; i++ {
				_, _ = tc.guard.RecordFailure(ctx, id)
			}
			tc.clock.Advance(299 * time.Second)
			if locked, _ := tc.guard.IsLocked(ctx, id); !locked {
				t.Fatal("expected lock to hold before lock duration elapses")
			}
			tc.clock.Advance(time.Second)
			if locked, _ := tc.guard.IsLocked(ctx, id); locked {
				t.Fatal("expected lock to expire at locked_until")
			}
			// Counting restarts from scratch once the lock is gone.
			locked, err := tc.guard.RecordFailure(ctx, id)
			if err != nil || locked {
				t.Fatalf("expected fresh single failure, locked=%v err=%v", locked, err)
			}
		})
	}
}

func TestLoginAttemptGuardExpiredLockResetOnFailure(t *testing.T) {
	for _, tc := range newGuardsUnderTest(t, DefaultLoginPolicy()) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			id := "relock@example.com"
			for i := 0; i < 5; i++ {
				_, _ = tc.guard.RecordFailure(ctx, id)
			}
			tc.clock.Advance(301 * time.Second)
			// No IsLocked call in between: the failure itself must observe
			// the expired lock and start a new record.
			for i := 1; i <= 4; i++ {
				if locked, _ := tc.guard.RecordFailure(ctx, id); locked {
					t.Fatalf("unexpected lock after %d post-expiry failures", i)
				}
			}
			if locked, _ := tc.guard.RecordFailure(ctx, id); !locked {
				t.Fatal("expected relock on 5th post-expiry failure")
			}
		})
	}
}

func TestLoginAttemptGuardActiveLockNotExtended(t *testing.T) {
	for _, tc := range newGuardsUnderTest(t, DefaultLoginPolicy()) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			id := "steady@example.com"
			for i := 0; i < 5; i++ {
				_, _ = tc.guard.RecordFailure(ctx, id)
			}
			tc.clock.Advance(200 * time.Second)
			if locked, _ := tc.guard.RecordFailure(ctx, id); !locked {
				t.Fatal("expected lock to remain active")
			}
			tc.clock.Advance(100 * time.Second)
			if locked, _ := tc.guard.IsLocked(ctx, id); locked {
				t.Fatal("expected original lock expiry to stand")
			}
		})
	}
}

func TestLoginAttemptGuardWindowElapsedResets(t *testing.T) {
	for _, tc := range newGuardsUnderTest(t, DefaultLoginPolicy()) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			id := "slow@example.com"
			for i := 0; i < 4; i++ {
				_, _ = tc.guard.RecordFailure(ctx, id)
			}
			tc.clock.Advance(61 * time.Second)
			if locked, _ := tc.guard.RecordFailure(ctx, id); locked {
				t.Fatal("expected window reset instead of lock")
			}
			for i := 0; i < 3; i++ {
				_, _ = tc.guard.RecordFailure(ctx, id)
			}
			if locked, _ := tc.guard.RecordFailure(ctx, id); !locked {
				t.Fatal("expected lock after 5 failures in the new window")
			}
		})
	}
}

func TestLoginAttemptGuardClear(t *testing.T) {
	for _, tc := range newGuardsUnderTest(t, DefaultLoginPolicy()) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			id := "clear@example.com"
			for i := 0; i < 5; i++ {
				_, _ = tc.guard.RecordFailure(ctx, id)
			}
			if err := tc.guard.Clear(ctx, id); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if locked, _ := tc.guard.IsLocked(ctx, id); locked {
				t.Fatal("expected clear to drop the lock")
			}
		})
	}
}

func TestLoginAttemptGuardIdentityIsExact(t *testing.T) {
	for _, tc := range newGuardsUnderTest(t, LoginPolicy{MaxAttempts: 1, Window: time.Minute, LockDuration: time.Minute}) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			_, _ = tc.guard.RecordFailure(ctx, "Case@example.com")
			if locked, _ := tc.guard.IsLocked(ctx, "case@example.com"); locked {
				t.Fatal("expected identities to be case-sensitive")
			}
		})
	}
}

func TestInMemoryLoginAttemptGuardConcurrentFailures(t *testing.T) {
	guard := NewInMemoryLoginAttemptGuard(LoginPolicy{MaxAttempts: 50, Window: time.Hour, LockDuration: time.Minute})
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = guard.RecordFailure(ctx, "race@example.com")
		}()
	}
	wg.Wait()

	guard.mu.Lock()
	rec := guard.data["race@example.com"]
	guard.mu.Unlock()
	if rec.Count != 50 || rec.LockedUntil.IsZero() {
		t.Fatalf("expected 50 counted failures and a lock, got %+v", rec)
	}
}

func TestRedisLoginAttemptGuardSetsTTL(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	guard := NewRedisLoginAttemptGuard(client, "ttl", DefaultLoginPolicy())

	if _, err := guard.RecordFailure(context.Background(), "ttl@example.com"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	key := guard.stateKey("ttl@example.com")
	if ttl := m.TTL(key); ttl <= 0 || ttl > 2*time.Minute {
		t.Fatalf("unexpected ttl %s for %s", ttl, key)
	}
	if got := fmt.Sprint(m.Keys()); got != fmt.Sprintf("[%s]", key) {
		t.Fatalf("expected only hashed key, got %s", got)
	}
}
