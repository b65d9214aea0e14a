package mocks

import (
	"time"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"
	"github.com/stretchr/testify/mock"
)

// MockSessionGenerator is a mock type for the SessionGenerator type
type MockSessionGenerator struct {
	mock.Mock
}

// GenerateToken provides a mock function with given fields: user, providerID
func (_m *MockSessionGenerator) GenerateToken(user *models.LocalUser, providerID string) (string, time.Time, error) {
	ret := _m.Called(user, providerID)

	return ret.Get(0).(string), ret.Get(1).(time.Time), ret.Error(2)
}

// ValidateToken provides a mock function with given fields: tokenString
func (_m *MockSessionGenerator) ValidateToken(tokenString string) (*service.SessionClaims, error) {
	ret := _m.Called(tokenString)

	claims, _ := ret.Get(0).(*service.SessionClaims)
	return claims, ret.Error(1)
}
