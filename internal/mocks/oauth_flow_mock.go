package mocks

import (
	"context"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

var (
	_ service.OAuthFlow       = (*MockOAuthFlow)(nil)
	_ service.TokenAcquirer   = (*MockTokenAcquirer)(nil)
	_ service.IDTokenVerifier = (*MockIDTokenVerifier)(nil)
)

type MockOAuthFlow struct {
	mock.Mock
}

func (m *MockOAuthFlow) AuthCodeURL(ctx context.Context, providerID, state, verifier string) (string, error) {
	args := m.Called(providerID, state, verifier)
	return args.String(0), args.Error(1)
}

func (m *MockOAuthFlow) Exchange(providerID, code, verifier string) service.TokenAcquirer {
	args := m.Called(providerID, code, verifier)
	acquirer, _ := args.Get(0).(service.TokenAcquirer)
	return acquirer
}

type MockTokenAcquirer struct {
	mock.Mock
}

func (m *MockTokenAcquirer) AcquireToken(ctx context.Context) (*oauth2.Token, error) {
	args := m.Called(ctx)
	token, _ := args.Get(0).(*oauth2.Token)
	return token, args.Error(1)
}

type MockIDTokenVerifier struct {
	mock.Mock
}

func (m *MockIDTokenVerifier) VerifyIDToken(ctx context.Context, provider config.ProviderConfig, rawIDToken string) error {
	args := m.Called(provider.ProviderID, rawIDToken)
	return args.Error(0)
}
