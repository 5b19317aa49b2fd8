package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/repository"
)

// ContinuityTokenStore holds issued continuity tokens keyed by token hash.
// Find returns repository.ErrContinuityTokenNotFound for unknown hashes;
// expiry is judged by the caller. DeleteByUser drops every token a user holds.
type ContinuityTokenStore interface {
	Save(ctx context.Context, token domain.ContinuityToken) error
	Find(ctx context.Context, tokenHash string) (*domain.ContinuityToken, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID uint) error
}

type InMemoryContinuityTokenStore struct {
	mu   sync.Mutex
	data map[string]domain.ContinuityToken
	now  func() time.Time
}

func NewInMemoryContinuityTokenStore() *InMemoryContinuityTokenStore {
	return &InMemoryContinuityTokenStore{
		data: make(map[string]domain.ContinuityToken),
		now:  time.Now,
	}
}

func (s *InMemoryContinuityTokenStore) Save(_ context.Context, token domain.ContinuityToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.data {
		if v.ExpiredAt(now) {
			delete(s.data, k)
		}
	}
	s.data[token.TokenHash] = token
	return nil
}

func (s *InMemoryContinuityTokenStore) Find(_ context.Context, tokenHash string) (*domain.ContinuityToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data[tokenHash]
	if !ok {
		return nil, repository.ErrContinuityTokenNotFound
	}
	return &t, nil
}

func (s *InMemoryContinuityTokenStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	delete(s.data, tokenHash)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryContinuityTokenStore) DeleteByUser(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.data {
		if v.UserID == userID {
			delete(s.data, k)
		}
	}
	return nil
}

// Drops every token hash listed in the user's index set, then the set.
var redisDeleteUserTokensScript = redis.NewScript(`
local hashes = redis.call("SMEMBERS", KEYS[1])
for _, h in ipairs(hashes) do
  redis.call("DEL", ARGV[1] .. h)
end
redis.call("DEL", KEYS[1])
return #hashes
`)

// RedisContinuityTokenStore keeps one hash per token plus a per-user set of
// token hashes. Keys carry a relative TTL equal to the token lifetime, so
// expiry does not depend on the Redis server clock agreeing with ours.
type RedisContinuityTokenStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisContinuityTokenStore(client redis.UniversalClient, prefix string) *RedisContinuityTokenStore {
	if prefix == "" {
		prefix = "obs"
	}
	return &RedisContinuityTokenStore{client: client, prefix: prefix}
}

func (s *RedisContinuityTokenStore) Save(ctx context.Context, token domain.ContinuityToken) error {
	ttl := token.ExpiresAt.Sub(token.CreatedAt)
	if token.CreatedAt.IsZero() {
		ttl = time.Until(token.ExpiresAt)
	}
	if ttl <= 0 {
		return nil
	}
	key := s.key(token.TokenHash)
	userKey := s.userKey(token.UserID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"uid", strconv.FormatUint(uint64(token.UserID), 10),
		"exp_ms", strconv.FormatInt(token.ExpiresAt.UnixMilli(), 10),
		"created_ms", strconv.FormatInt(token.CreatedAt.UnixMilli(), 10),
	)
	pipe.PExpire(ctx, key, ttl)
	pipe.SAdd(ctx, userKey, token.TokenHash)
	pipe.PExpire(ctx, userKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save continuity token: %w", err)
	}
	return nil
}

func (s *RedisContinuityTokenStore) Find(ctx context.Context, tokenHash string) (*domain.ContinuityToken, error) {
	vals, err := s.client.HGetAll(ctx, s.key(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("find continuity token: %w", err)
	}
	if len(vals) == 0 {
		return nil, repository.ErrContinuityTokenNotFound
	}
	uid, err := strconv.ParseUint(vals["uid"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse continuity token user: %w", err)
	}
	expMS, err := strconv.ParseInt(vals["exp_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse continuity token expiry: %w", err)
	}
	createdMS, _ := strconv.ParseInt(vals["created_ms"], 10, 64)
	return &domain.ContinuityToken{
		TokenHash: tokenHash,
		UserID:    uint(uid),
		ExpiresAt: time.UnixMilli(expMS).UTC(),
		CreatedAt: time.UnixMilli(createdMS).UTC(),
	}, nil
}

func (s *RedisContinuityTokenStore) Delete(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("delete continuity token: %w", err)
	}
	return nil
}

func (s *RedisContinuityTokenStore) DeleteByUser(ctx context.Context, userID uint) error {
	err := redisDeleteUserTokensScript.Run(ctx, s.client, []string{s.userKey(userID)}, s.key("")).Err()
	if err != nil {
		return fmt.Errorf("delete user continuity tokens: %w", err)
	}
	return nil
}

func (s *RedisContinuityTokenStore) key(tokenHash string) string {
	return fmt.Sprintf("%s:continuity:%s", s.prefix, tokenHash)
}

func (s *RedisContinuityTokenStore) userKey(userID uint) string {
	return fmt.Sprintf("%s:continuity-user:%d", s.prefix, userID)
}

// DBContinuityTokenStore persists tokens in login_tokens so they survive a
// restart of a single instance without Redis.
type DBContinuityTokenStore struct {
	repo *repository.GormContinuityTokenRepository
	now  func() time.Time
}

func NewDBContinuityTokenStore(repo *repository.GormContinuityTokenRepository) *DBContinuityTokenStore {
	return &DBContinuityTokenStore{repo: repo, now: time.Now}
}

func (s *DBContinuityTokenStore) Save(ctx context.Context, token domain.ContinuityToken) error {
	if _, err := s.repo.DeleteExpired(ctx, s.now()); err != nil {
		return fmt.Errorf("sweep continuity tokens: %w", err)
	}
	if err := s.repo.Save(ctx, token); err != nil {
		return fmt.Errorf("save continuity token: %w", err)
	}
	return nil
}

func (s *DBContinuityTokenStore) Find(ctx context.Context, tokenHash string) (*domain.ContinuityToken, error) {
	t, err := s.repo.Find(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrContinuityTokenNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find continuity token: %w", err)
	}
	return t, nil
}

func (s *DBContinuityTokenStore) Delete(ctx context.Context, tokenHash string) error {
	if err := s.repo.Delete(ctx, tokenHash); err != nil {
		return fmt.Errorf("delete continuity token: %w", err)
	}
	return nil
}

func (s *DBContinuityTokenStore) DeleteByUser(ctx context.Context, userID uint) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user continuity tokens: %w", err)
	}
	return nil
}
