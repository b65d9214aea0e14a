package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
)

// MemoryStateRepository implements StateRepository in memory (NOT FOR PRODUCTION)
type MemoryStateRepository struct {
	states        map[string]models.LoginState
	mutex         sync.Mutex
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewMemoryStateRepository creates a new in-memory login state repository.
// cleanupInterval defines how often abandoned states are removed; zero disables the sweep.
func NewMemoryStateRepository(cleanupInterval time.Duration) *MemoryStateRepository {
	r := &MemoryStateRepository{
		states:      make(map[string]models.LoginState),
		stopCleanup: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		r.cleanupTicker = time.NewTicker(cleanupInterval)
		go r.startCleanup()
	}
	return r
}

// startCleanup runs the periodic cleanup in a background goroutine.
func (r *MemoryStateRepository) startCleanup() {
	for {
		select {
		case <-r.cleanupTicker.C:
			r.cleanupExpiredStates()
		case <-r.stopCleanup:
			r.cleanupTicker.Stop()
			return
		}
	}
}

// cleanupExpiredStates drops states whose user never came back from the provider.
func (r *MemoryStateRepository) cleanupExpiredStates() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for key, state := range r.states {
		if state.IsExpired() {
			delete(r.states, key)
		}
	}
}

// StopCleanup stops the background cleanup task.
func (r *MemoryStateRepository) StopCleanup() {
	r.stopOnce.Do(func() { close(r.stopCleanup) })
}

func (r *MemoryStateRepository) StoreLoginState(_ context.Context, state models.LoginState) error {
	if state.State == "" || state.ProviderID == "" {
		return errors.New("invalid login state: state and providerId must be set")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.states[state.State] = state
	return nil
}

func (r *MemoryStateRepository) ConsumeLoginState(_ context.Context, state string) (*models.LoginState, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, exists := r.states[state]
	if !exists {
		return nil, repository.ErrStateNotFound
	}
	delete(r.states, state)
	if stored.IsExpired() {
		return nil, repository.ErrStateNotFound
	}
	return &stored, nil
}

func (r *MemoryStateRepository) len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.states)
}
