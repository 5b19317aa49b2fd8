package service

import (
	"context"
	"sync"
	"time"

	"github.com/sandeepkv93/observation-service/internal/observability"
)

// LoginPolicy bounds password guessing per identity: MaxAttempts failures
// inside Window lock the identity for LockDuration.
type LoginPolicy struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

func DefaultLoginPolicy() LoginPolicy {
	return LoginPolicy{MaxAttempts: 5, Window: 60 * time.Second, LockDuration: 300 * time.Second}
}

func normalizeLoginPolicy(p LoginPolicy) LoginPolicy {
	def := DefaultLoginPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.LockDuration <= 0 {
		p.LockDuration = def.LockDuration
	}
	return p
}

// LoginAttemptGuard tracks failed password checks per identity. Identities
// are compared exactly as given.
type LoginAttemptGuard interface {
	// IsLocked reports an active lock. An expired lock is removed when seen.
	IsLocked(ctx context.Context, identity string) (bool, error)
	// RecordFailure counts one failed password check and reports whether the
	// identity is locked afterwards.
	RecordFailure(ctx context.Context, identity string) (bool, error)
	Clear(ctx context.Context, identity string) error
}

type NoopLoginAttemptGuard struct{}

func NewNoopLoginAttemptGuard() *NoopLoginAttemptGuard { return &NoopLoginAttemptGuard{} }

func (NoopLoginAttemptGuard) IsLocked(context.Context, string) (bool, error)      { return false, nil }
func (NoopLoginAttemptGuard) RecordFailure(context.Context, string) (bool, error) { return false, nil }
func (NoopLoginAttemptGuard) Clear(context.Context, string) error                 { return nil }

type loginAttemptRecord struct {
	Count       int
	WindowStart time.Time
	LockedUntil time.Time
}

func (r loginAttemptRecord) lockActive(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

func (r loginAttemptRecord) lockExpired(now time.Time) bool {
	return !r.LockedUntil.IsZero() && !now.Before(r.LockedUntil)
}

// nextLoginAttemptRecord applies one failure at now. newlyLocked is true only
// on the failure that crosses the threshold.
func nextLoginAttemptRecord(rec loginAttemptRecord, exists bool, now time.Time, p LoginPolicy) (next loginAttemptRecord, newlyLocked bool) {
	switch {
	case !exists, rec.lockExpired(now):
		rec = loginAttemptRecord{Count: 1, WindowStart: now}
	case rec.lockActive(now):
		rec.Count++
		return rec, false
	case now.Sub(rec.WindowStart) > p.Window:
		rec = loginAttemptRecord{Count: 1, WindowStart: now}
	default:
		rec.Count++
	}
	if rec.Count >= p.MaxAttempts && now.Sub(rec.WindowStart) <= p.Window {
		rec.LockedUntil = now.Add(p.LockDuration)
		return rec, true
	}
	return rec, false
}

type InMemoryLoginAttemptGuard struct {
	mu     sync.Mutex
	policy LoginPolicy
	data   map[string]loginAttemptRecord
	now    func() time.Time
}

func NewInMemoryLoginAttemptGuard(policy LoginPolicy) *InMemoryLoginAttemptGuard {
	return &InMemoryLoginAttemptGuard{
		policy: normalizeLoginPolicy(policy),
		data:   make(map[string]loginAttemptRecord),
		now:    time.Now,
	}
}

func (g *InMemoryLoginAttemptGuard) IsLocked(ctx context.Context, identity string) (bool, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.data[identity]
	if !ok {
		return false, nil
	}
	if rec.lockActive(now) {
		observability.RecordLoginGuardEvent(ctx, "memory", "check", "locked")
		return true, nil
	}
	// Expired locks and stale tracking windows carry no state worth keeping.
	if rec.lockExpired(now) || now.Sub(rec.WindowStart) > g.policy.Window {
		delete(g.data, identity)
		observability.RecordLoginGuardEvent(ctx, "memory", "check", "expired")
	}
	return false, nil
}

func (g *InMemoryLoginAttemptGuard) RecordFailure(ctx context.Context, identity string) (bool, error) {
	now := g.now()
	g.mu.Lock()
	rec, ok := g.data[identity]
	next, newlyLocked := nextLoginAttemptRecord(rec, ok, now, g.policy)
	g.data[identity] = next
	g.mu.Unlock()

	if newlyLocked {
		observability.RecordLockout(ctx, "memory")
		observability.RecordLockoutDuration(ctx, "memory", g.policy.LockDuration)
	}
	observability.RecordLoginGuardEvent(ctx, "memory", "failure", lockOutcome(next.lockActive(now)))
	return next.lockActive(now), nil
}

func (g *InMemoryLoginAttemptGuard) Clear(ctx context.Context, identity string) error {
	g.mu.Lock()
	delete(g.data, identity)
	g.mu.Unlock()
	observability.RecordLoginGuardEvent(ctx, "memory", "clear", "ok")
	return nil
}

func lockOutcome(locked bool) string {
	if locked {
		return "locked"
	}
	return "counted"
}
