package mocks

import (
	"context"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"
	"github.com/stretchr/testify/mock"
)

// MockAuthGenerator is a mock implementation of the AuthGenerator interface.
type MockAuthGenerator struct {
	mock.Mock
}

func (m *MockAuthGenerator) Authenticate(ctx context.Context, attempt service.AuthAttempt) models.AuthOutcome {
	args := m.Called(ctx, attempt)
	return args.Get(0).(models.AuthOutcome)
}
