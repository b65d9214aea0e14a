package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
)

var _ repository.StateRepository = (*MockStateRepository)(nil)

// MockStateRepository records login state calls. The context is not part of the
// expectation, so tests match on the state alone.
type MockStateRepository struct {
	mock.Mock
}

func (m *MockStateRepository) StoreLoginState(_ context.Context, state models.LoginState) error {
	args := m.Called(state)
	return args.Error(0)
}

func (m *MockStateRepository) ConsumeLoginState(_ context.Context, state string) (*models.LoginState, error) {
	args := m.Called(state)
	loginState, _ := args.Get(0).(*models.LoginState)
	return loginState, args.Error(1)
}
