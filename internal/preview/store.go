package preview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/learnly/prepexam-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// Store persists a visitor's viewed-question set. Implementations are
// interchangeable: the gate picks one per operation based on current
// consent, never caching the choice.
type Store interface {
	Load(ctx context.Context, visitorID string) (map[string]struct{}, error)
	Save(ctx context.Context, visitorID string, set map[string]struct{}) error
	Clear(ctx context.Context, visitorID string) error
}

// RedisStore is the durable backend, used only with analytics consent.
// Entries carry a retention TTL so abandoned visitors age out.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates the durable viewed-question store.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, visitorID string) (map[string]struct{}, error) {
	key := config.CacheKey.VisitorViewedQuestionsKey(visitorID)
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load viewed set: %w", err)
	}
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set, nil
}

// Save replaces the whole set in one pipeline. Read-modify-write happens at
// the gate level; the store only ever writes full sets.
func (s *RedisStore) Save(ctx context.Context, visitorID string, set map[string]struct{}) error {
	key := config.CacheKey.VisitorViewedQuestionsKey(visitorID)
	members := make([]interface{}, 0, len(set))
	for m := range set {
		members = append(members, m)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save viewed set: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, visitorID string) error {
	key := config.CacheKey.VisitorViewedQuestionsKey(visitorID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("clear viewed set: %w", err)
	}
	return nil
}

// MemoryStore is the ephemeral backend used without analytics consent or
// after a durable write failure. It does not survive a process restart.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string]map[string]struct{}
}

// NewMemoryStore creates the ephemeral viewed-question store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]map[string]struct{})}
}

func (s *MemoryStore) Load(_ context.Context, visitorID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{}, len(s.sets[visitorID]))
	for m := range s.sets[visitorID] {
		set[m] = struct{}{}
	}
	return set, nil
}

func (s *MemoryStore) Save(_ context.Context, visitorID string, set map[string]struct{}) error {
	copied := make(map[string]struct{}, len(set))
	for m := range set {
		copied[m] = struct{}{}
	}
	s.mu.Lock()
	s.sets[visitorID] = copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, visitorID string) error {
	s.mu.Lock()
	delete(s.sets, visitorID)
	s.mu.Unlock()
	return nil
}
