package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
	"github.com/redis/go-redis/v9"
)

const loginStatePrefix = "login_state:"

// RedisStateRepository implements StateRepository using Redis with the state expiry as TTL.
type RedisStateRepository struct {
	client *redis.Client
}

func NewRedisStateRepository(client *redis.Client) repository.StateRepository {
	return &RedisStateRepository{
		client: client,
	}
}

func (r *RedisStateRepository) StoreLoginState(ctx context.Context, state models.LoginState) error {
	if state.State == "" || state.ProviderID == "" {
		return errors.New("invalid login state: state and providerId must be set")
	}
	ttl := time.Until(state.Expiry)
	if ttl <= 0 {
		return fmt.Errorf("expiry time must be in the future")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal login state: %w", err)
	}
	if err := r.client.Set(ctx, loginStatePrefix+state.State, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store login state in redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) ConsumeLoginState(ctx context.Context, state string) (*models.LoginState, error) {
	key := loginStatePrefix + state

	pipe := r.client.TxPipeline()
	getCmd := pipe.Get(ctx, key)
	pipe.Del(ctx, key)

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to execute consume login state transaction: %w", err)
	}

	data, getErr := getCmd.Bytes()
	if getErr == redis.Nil {
		return nil, repository.ErrStateNotFound
	}
	if getErr != nil {
		return nil, fmt.Errorf("failed to read login state: %w", getErr)
	}

	var stored models.LoginState
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("json unmarshal failed for login state: %w", err)
	}
	if stored.IsExpired() {
		return nil, repository.ErrStateNotFound
	}
	return &stored, nil
}
