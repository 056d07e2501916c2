package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arizent/composer-insights/internal/models"
)

// Redis keys. These names are shared with earlier deployments of the
// dashboard, so changing them orphans persisted state.
const (
	stateKey = "piano_form_state"
	tokenKey = "composer_bearer"
)

// RedisStateStore persists the form state in Redis.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) LoadState(ctx context.Context) (json.RawMessage, error) {
	val, err := s.client.Get(ctx, stateKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return json.RawMessage(val), nil
}

func (s *RedisStateStore) SaveState(ctx context.Context, state json.RawMessage) error {
	if err := s.client.Set(ctx, stateKey, []byte(state), 0).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// RedisTokenStore persists the captured bearer token in Redis.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) LoadToken(ctx context.Context) (*models.CapturedToken, error) {
	val, err := s.client.Get(ctx, tokenKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	var tok models.CapturedToken
	if err := json.Unmarshal(val, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &tok, nil
}

func (s *RedisTokenStore) SaveToken(ctx context.Context, tok models.CapturedToken) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.client.Set(ctx, tokenKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) ClearToken(ctx context.Context) error {
	if err := s.client.Del(ctx, tokenKey).Err(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
