package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
)

// MemoryUserRepository implements UserRepository in memory (NOT FOR PRODUCTION)
type MemoryUserRepository struct {
	users  map[string]models.LocalUser
	events map[string][]models.UserEvent
	mutex  sync.RWMutex
}

func NewMemoryUserRepository() repository.UserRepository {
	return &MemoryUserRepository{
		users:  make(map[string]models.LocalUser),
		events: make(map[string][]models.UserEvent),
	}
}

func (r *MemoryUserRepository) GetUser(_ context.Context, username string) (*models.LocalUser, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	user, exists := r.users[username]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (r *MemoryUserRepository) NewUser() *models.LocalUser {
	return &models.LocalUser{}
}

func (r *MemoryUserRepository) CreateUser(_ context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error {
	if user == nil || user.Username == "" {
		return errors.New("invalid user: username must be set")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return repository.ErrUserExists
	}
	r.put(user, actingAdmin, audit, ev)
	return nil
}

func (r *MemoryUserRepository) SaveUser(_ context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error {
	if user == nil || user.Username == "" {
		return errors.New("invalid user: username must be set")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.put(user, actingAdmin, audit, ev)
	return nil
}

// put must be called with the write lock held.
func (r *MemoryUserRepository) put(user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) {
	stored := *user
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.users[stored.Username] = stored
	if audit {
		r.events[stored.Username] = append(r.events[stored.Username], repository.NewEvent(user, actingAdmin, ev))
	}
}

func (r *MemoryUserRepository) SetEnabled(_ context.Context, username string, enabled bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, exists := r.users[username]
	if !exists {
		return repository.ErrUserNotFound
	}
	user.Enabled = enabled
	r.users[username] = user
	return nil
}

func (r *MemoryUserRepository) ListEvents(_ context.Context, username string) ([]models.UserEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	events := make([]models.UserEvent, len(r.events[username]))
	copy(events, r.events[username])
	return events, nil
}
