package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/repository"
)

type continuityUnderTest struct {
	name  string
	svc   *ContinuityService
	clock *fakeClock
}

func newContinuityServicesForTest(t *testing.T) []continuityUnderTest {
	t.Helper()

	memClock := newFakeClock()
	mem := NewInMemoryContinuityTokenStore()
	mem.now = memClock.Now
	memSvc := NewContinuityService(mem, time.Hour)
	memSvc.now = memClock.Now

	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisClock := newFakeClock()
	m.SetTime(redisClock.Now())
	redisSvc := NewContinuityService(NewRedisContinuityTokenStore(client, "test"), time.Hour)
	redisSvc.now = redisClock.Now

	db := newServiceDBForTest(t)
	dbClock := newFakeClock()
	dbStore := NewDBContinuityTokenStore(repository.NewContinuityTokenRepository(db))
	dbStore.now = dbClock.Now
	dbSvc := NewContinuityService(dbStore, time.Hour)
	dbSvc.now = dbClock.Now

	return []continuityUnderTest{
		{name: "memory", svc: memSvc, clock: memClock},
		{name: "redis", svc: redisSvc, clock: redisClock},
		{name: "database", svc: dbSvc, clock: dbClock},
	}
}

func TestContinuityIssueAndRedeem(t *testing.T) {
	for _, tc := range newContinuityServicesForTest(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			token, exp, err := tc.svc.Issue(ctx, 7)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if len(token) < 22 {
				t.Fatalf("token too short for 128 bits: %q", token)
			}
			if want := tc.clock.Now().Add(time.Hour); !exp.Equal(want) {
				t.Fatalf("expected expiry %s, got %s", want, exp)
			}
			tc.clock.Advance(59 * time.Minute)
			uid, ok, err := tc.svc.Redeem(ctx, token)
			if err != nil || !ok || uid != 7 {
				t.Fatalf("expected live token for user 7, got uid=%d ok=%v err=%v", uid, ok, err)
			}
			// Redeeming is repeatable within the TTL.
			if _, ok, _ := tc.svc.Redeem(ctx, token); !ok {
				t.Fatal("expected second redeem to succeed")
			}
		})
	}
}

func TestContinuityRedeemUnknownAndExpired(t *testing.T) {
	for _, tc := range newContinuityServicesForTest(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if _, ok, err := tc.svc.Redeem(ctx, "never-issued"); ok || err != nil {
				t.Fatalf("expected unknown token rejected, ok=%v err=%v", ok, err)
			}
			if _, ok, err := tc.svc.Redeem(ctx, ""); ok || err != nil {
				t.Fatalf("expected empty token rejected, ok=%v err=%v", ok, err)
			}

			token, _, err := tc.svc.Issue(ctx, 3)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			tc.clock.Advance(time.Hour)
			if _, ok, err := tc.svc.Redeem(ctx, token); ok || err != nil {
				t.Fatalf("expected token rejected at expiry, ok=%v err=%v", ok, err)
			}
			// Moving the clock back does not resurrect a token dropped on expiry.
			tc.clock.Advance(-time.Minute)
			if _, ok, _ := tc.svc.Redeem(ctx, token); ok {
				t.Fatal("expected expired token to stay deleted")
			}
		})
	}
}

func TestContinuityRevoke(t *testing.T) {
	for _, tc := range newContinuityServicesForTest(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			token, _, err := tc.svc.Issue(ctx, 9)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if err := tc.svc.Revoke(ctx, token); err != nil {
				t.Fatalf("revoke: %v", err)
			}
			if _, ok, _ := tc.svc.Redeem(ctx, token); ok {
				t.Fatal("expected revoked token rejected")
			}
		})
	}
}

func TestContinuityRevokeUser(t *testing.T) {
	for _, tc := range newContinuityServicesForTest(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			first, _, err := tc.svc.Issue(ctx, 11)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			second, _, err := tc.svc.Issue(ctx, 11)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			other, _, err := tc.svc.Issue(ctx, 12)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if err := tc.svc.RevokeUser(ctx, 11); err != nil {
				t.Fatalf("revoke user: %v", err)
			}
			for _, token := range []string{first, second} {
				if _, ok, _ := tc.svc.Redeem(ctx, token); ok {
					t.Fatal("expected token of revoked user rejected")
				}
			}
			if uid, ok, err := tc.svc.Redeem(ctx, other); err != nil || !ok || uid != 12 {
				t.Fatalf("expected other user's token intact, uid=%d ok=%v err=%v", uid, ok, err)
			}
			if err := tc.svc.RevokeUser(ctx, 99); err != nil {
				t.Fatalf("revoke user without tokens: %v", err)
			}
		})
	}
}

func TestContinuityTokensAreUnique(t *testing.T) {
	svc := NewContinuityService(NewInMemoryContinuityTokenStore(), time.Hour)
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		token, _, err := svc.Issue(context.Background(), 1)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = struct{}{}
	}
}

func TestInMemoryContinuityStorePurgesExpiredOnSave(t *testing.T) {
	clock := newFakeClock()
	store := NewInMemoryContinuityTokenStore()
	store.now = clock.Now
	ctx := context.Background()

	_ = store.Save(ctx, domain.ContinuityToken{TokenHash: "old", UserID: 1, ExpiresAt: clock.Now().Add(time.Minute)})
	clock.Advance(2 * time.Minute)
	_ = store.Save(ctx, domain.ContinuityToken{TokenHash: "new", UserID: 1, ExpiresAt: clock.Now().Add(time.Minute)})

	store.mu.Lock()
	_, oldPresent := store.data["old"]
	size := len(store.data)
	store.mu.Unlock()
	if oldPresent || size != 1 {
		t.Fatalf("expected expired entry purged, size=%d", size)
	}
}

func TestRedisContinuityStoreKeyExpiresWithToken(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisContinuityTokenStore(client, "ttl")
	ctx := context.Background()

	now := time.Now().UTC()
	m.SetTime(now)
	if err := store.Save(ctx, domain.ContinuityToken{TokenHash: "abc", UserID: 4, ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := m.TTL("ttl:continuity:abc"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	m.FastForward(time.Hour + time.Second)
	if _, err := store.Find(ctx, "abc"); !errors.Is(err, repository.ErrContinuityTokenNotFound) {
		t.Fatalf("expected not found after key expiry, got %v", err)
	}
}

func TestRedisContinuityStoreTTLIsRelativeToCreation(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisContinuityTokenStore(client, "skew")
	ctx := context.Background()

	// Token timestamps far behind the server clock must still get a full TTL.
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m.SetTime(time.Now())
	token := domain.ContinuityToken{TokenHash: "old-clock", UserID: 3, ExpiresAt: created.Add(30 * time.Minute), CreatedAt: created}
	if err := store.Save(ctx, token); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := m.TTL("skew:continuity:old-clock"); ttl != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %s", ttl)
	}
	if ttl := m.TTL("skew:continuity-user:3"); ttl != 30*time.Minute {
		t.Fatalf("expected user index ttl 30m, got %s", ttl)
	}
	got, err := store.Find(ctx, "old-clock")
	if err != nil || got.UserID != 3 {
		t.Fatalf("find: %+v %v", got, err)
	}
}
