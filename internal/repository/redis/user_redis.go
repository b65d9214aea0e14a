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

// RedisUserRepository implements UserRepository using Redis. Each user is one JSON
// string; audit events are appended to a per-user list.
type RedisUserRepository struct {
	client *redis.Client
}

// Helper to construct user key
func makeUserKey(username string) string {
	return fmt.Sprintf("user:%s", username)
}

// Helper to construct user events key
func makeUserEventsKey(username string) string {
	return fmt.Sprintf("user_events:%s", username)
}

func NewRedisUserRepository(client *redis.Client) repository.UserRepository {
	return &RedisUserRepository{
		client: client,
	}
}

func (r *RedisUserRepository) GetUser(ctx context.Context, username string) (*models.LocalUser, error) {
	data, err := r.client.Get(ctx, makeUserKey(username)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var user models.LocalUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", repository.ErrUserInit, username, err)
	}
	if user.Username == "" {
		return nil, fmt.Errorf("%w: %s: record has no username", repository.ErrUserInit, username)
	}
	return &user, nil
}

func (r *RedisUserRepository) NewUser() *models.LocalUser {
	return &models.LocalUser{}
}

// CreateUser watches the user key and writes the user and its audit event in one MULTI,
// so concurrent first sign-ins for one username create it once and never lose the event.
func (r *RedisUserRepository) CreateUser(ctx context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error {
	data, err := marshalUser(user)
	if err != nil {
		return err
	}
	key := makeUserKey(user.Username)

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis EXISTS failed: %w", err)
		}
		if exists > 0 {
			return repository.ErrUserExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if audit {
				return r.appendEvent(ctx, pipe, user, actingAdmin, ev)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		// the key changed between WATCH and EXEC
		return repository.ErrUserExists
	case errors.Is(err, repository.ErrUserExists):
		return err
	case err != nil:
		return fmt.Errorf("failed to execute user create transaction: %w", err)
	}
	return nil
}

func (r *RedisUserRepository) SaveUser(ctx context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error {
	data, err := marshalUser(user)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, makeUserKey(user.Username), data, 0)
	if audit {
		if err := r.appendEvent(ctx, pipe, user, actingAdmin, ev); err != nil {
			return err
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute user save pipeline: %w", err)
	}
	return nil
}

func (r *RedisUserRepository) SetEnabled(ctx context.Context, username string, enabled bool) error {
	user, err := r.GetUser(ctx, username)
	if err != nil {
		return err
	}
	user.Enabled = enabled

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	updated, err := r.client.SetXX(ctx, makeUserKey(username), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis SET XX failed: %w", err)
	}
	if !updated {
		return repository.ErrUserNotFound
	}
	return nil
}

func (r *RedisUserRepository) ListEvents(ctx context.Context, username string) ([]models.UserEvent, error) {
	raw, err := r.client.LRange(ctx, makeUserEventsKey(username), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE failed: %w", err)
	}

	events := make([]models.UserEvent, 0, len(raw))
	for _, item := range raw {
		var event models.UserEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("json unmarshal failed for user event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (r *RedisUserRepository) appendEvent(ctx context.Context, cmd redis.Cmdable, user *models.LocalUser, actingAdmin *models.LocalUser, ev models.EventDetails) error {
	data, err := json.Marshal(repository.NewEvent(user, actingAdmin, ev))
	if err != nil {
		return fmt.Errorf("failed to marshal user event: %w", err)
	}
	if err := cmd.RPush(ctx, makeUserEventsKey(user.Username), data).Err(); err != nil {
		return fmt.Errorf("redis RPUSH failed: %w", err)
	}
	return nil
}

func marshalUser(user *models.LocalUser) ([]byte, error) {
	if user == nil || user.Username == "" {
		return nil, errors.New("invalid user: username must be set")
	}
	stored := *user
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}
	return data, nil
}
