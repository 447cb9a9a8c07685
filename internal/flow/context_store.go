package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

// DefaultContextTTL is how long an idle conversation context is kept.
const DefaultContextTTL = 24 * time.Hour

// RedisKeyPrefix namespaces conversation contexts in Redis.
const RedisKeyPrefix = "orderpipe:ctx:"

// ContextStore holds per-user conversation contexts.
// Get returns the stored context or the default; Set replaces it wholesale.
type ContextStore interface {
	Get(ctx context.Context, userID string) (models.ConversationContext, error)
	Set(ctx context.Context, userID string, cc models.ConversationContext) error
}

type memoryEntry struct {
	cc      models.ConversationContext
	touched time.Time
}

// MemoryContextStore keeps contexts in process memory with an idle TTL.
type MemoryContextStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryContextStore creates a store; a non-positive ttl disables expiry.
func NewMemoryContextStore(ttl time.Duration) *MemoryContextStore {
	return &MemoryContextStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryContextStore) expired(e memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.touched) > s.ttl
}

func (s *MemoryContextStore) Get(ctx context.Context, userID string) (models.ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return models.NewConversationContext(), nil
	}
	if s.expired(e, s.now()) {
		delete(s.entries, userID)
		return models.NewConversationContext(), nil
	}
	return e.cc.Clone(), nil
}

func (s *MemoryContextStore) Set(ctx context.Context, userID string, cc models.ConversationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = memoryEntry{cc: cc.Normalize().Clone(), touched: s.now()}
	return nil
}

// Sweep evicts every expired context and returns how many were removed.
func (s *MemoryContextStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored contexts, expired or not.
func (s *MemoryContextStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RedisContextStore keeps contexts as JSON values with a TTL refreshed on every Set.
type RedisContextStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisContextStore wraps an existing client.
func NewRedisContextStore(client *redis.Client, ttl time.Duration) *RedisContextStore {
	return &RedisContextStore{client: client, ttl: ttl}
}

// ConnectRedis parses a redis:// URL and verifies the connection.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	slog.Info("ConnectRedis: connected", "addr", opt.Addr, "db", opt.DB)
	return client, nil
}

func redisKey(userID string) string {
	return RedisKeyPrefix + userID
}

func (s *RedisContextStore) Get(ctx context.Context, userID string) (models.ConversationContext, error) {
	data, err := s.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewConversationContext(), nil
	}
	if err != nil {
		return models.NewConversationContext(), fmt.Errorf("failed to load context for %s: %w", userID, err)
	}
	var cc models.ConversationContext
	if err := json.Unmarshal(data, &cc); err != nil {
		slog.Warn("RedisContextStore.Get: discarding unreadable context", "userID", userID, "error", err)
		return models.NewConversationContext(), nil
	}
	return cc.Normalize(), nil
}

func (s *RedisContextStore) Set(ctx context.Context, userID string, cc models.ConversationContext) error {
	data, err := json.Marshal(cc.Normalize())
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save context for %s: %w", userID, err)
	}
	return nil
}

// UserLocker serializes work per user id within one process.
type UserLocker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewUserLocker creates an empty locker.
func NewUserLocker() *UserLocker {
	return &UserLocker{locks: make(map[string]*userLock)}
}

// Lock blocks until userID is free and returns the matching unlock function.
func (l *UserLocker) Lock(userID string) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
