package mocks

import (
	"context"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUser(ctx context.Context, username string) (*models.LocalUser, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*models.LocalUser)
	return user, args.Error(1)
}

func (m *MockUserRepository) NewUser() *models.LocalUser {
	args := m.Called()
	if user, ok := args.Get(0).(*models.LocalUser); ok {
		return user
	}
	return &models.LocalUser{}
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error {
	args := m.Called(ctx, user, actingAdmin, audit, ev)
	return args.Error(0)
}

func (m *MockUserRepository) SaveUser(ctx context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error {
	args := m.Called(ctx, user, actingAdmin, audit, ev)
	return args.Error(0)
}

func (m *MockUserRepository) SetEnabled(ctx context.Context, username string, enabled bool) error {
	args := m.Called(ctx, username, enabled)
	return args.Error(0)
}

func (m *MockUserRepository) ListEvents(ctx context.Context, username string) ([]models.UserEvent, error) {
	args := m.Called(ctx, username)
	events, _ := args.Get(0).([]models.UserEvent)
	return events, args.Error(1)
}
