package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store persists mirror state across reloads of a browsing context. All
// same-origin contexts share one store.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// MemoryStore keeps state in-process. Used by tests and single-context
// embedders.
type MemoryStore struct {
	mu    sync.Mutex
	state State
	set   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return State{}, nil
	}
	return s.state.clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.clone()
	s.set = true
	return nil
}

// RedisStore persists state as JSON under one key, shared by every mirror of
// the same origin.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, origin string) *RedisStore {
	return &RedisStore{client: client, key: "mirror:state:" + origin}
}

func (s *RedisStore) Load(ctx context.Context) (State, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("load mirror state: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decode mirror state: %w", err)
	}
	return state, nil
}

func (s *RedisStore) Save(ctx context.Context, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode mirror state: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save mirror state: %w", err)
	}
	return nil
}
