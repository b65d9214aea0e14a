package service

import (
	"context"
	"time"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"golang.org/x/oauth2"
)

// TokenAcquirer is the token acquisition collaborator of one attempt.
type TokenAcquirer interface {
	AcquireToken(ctx context.Context) (*oauth2.Token, error)
}

// IDTokenVerifier checks the signature, issuer and audience of a raw identity token.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, provider config.ProviderConfig, rawIDToken string) error
}

// AuthAttempt is everything one authentication attempt starts from. ProviderID comes
// out-of-band from the login state, never from the callback request.
type AuthAttempt struct {
	ProviderID string
	Tokens     TokenAcquirer
}

// AuthGenerator runs authentication attempts.
type AuthGenerator interface {
	Authenticate(ctx context.Context, attempt AuthAttempt) models.AuthOutcome
}

// OAuthFlow covers the redirect half of the OAuth2 dance for the HTTP layer.
type OAuthFlow interface {
	// AuthCodeURL builds the provider authorization URL with a PKCE challenge for verifier.
	AuthCodeURL(ctx context.Context, providerID, state, verifier string) (string, error)
	// Exchange returns a TokenAcquirer that redeems code with verifier when asked.
	Exchange(providerID, code, verifier string) TokenAcquirer
}

// SessionGenerator issues and validates the session token handed out after sign-in.
type SessionGenerator interface {
	GenerateToken(user *models.LocalUser, providerID string) (string, time.Time, error)
	ValidateToken(tokenString string) (*SessionClaims, error)
}
