package quickbooks

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// StateTTL bounds the time between starting authorization and the callback.
const StateTTL = 10 * time.Minute

var ErrStateInvalid = errors.New("invalid or expired OAuth state")

// StateStore binds single-use OAuth state nonces to the user that started the flow.
type StateStore interface {
	Save(ctx context.Context, state, userID string, ttl time.Duration) error
	// Consume returns the bound user and forgets the state. Unknown, expired or
	// already consumed states yield ErrStateInvalid.
	Consume(ctx context.Context, state string) (string, error)
}

// NewState returns a fresh random state nonce.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type stateEntry struct {
	userID    string
	expiresAt time.Time
}

// MemoryStateStore keeps states in process memory. Suitable for a single instance.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]stateEntry
	now     func() time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]stateEntry), now: time.Now}
}

func (s *MemoryStateStore) Save(_ context.Context, state, userID string, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[state] = stateEntry{userID: userID, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[state]
	delete(s.entries, state)
	if !ok || s.now().After(e.expiresAt) {
		return "", ErrStateInvalid
	}
	return e.userID, nil
}

// StartPurge removes expired states every interval until ctx is done.
func (s *MemoryStateStore) StartPurge(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purge()
			}
		}
	}()
}

func (s *MemoryStateStore) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// RedisStateStore shares states across instances.
type RedisStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStateStore(client *redis.Client, prefix string) *RedisStateStore {
	return &RedisStateStore{client: client, prefix: prefix}
}

func (s *RedisStateStore) key(state string) string {
	return fmt.Sprintf("%s:oauth_state:%s", s.prefix, state)
}

func (s *RedisStateStore) Save(ctx context.Context, state, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(state), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	userID, err := s.client.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateInvalid
	}
	if err != nil {
		return "", fmt.Errorf("failed to read oauth state: %w", err)
	}
	return userID, nil
}

// NewRedisClient builds a go-redis client with bounded timeouts.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}
