package service

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
)

var _ IDTokenVerifier = (*ProviderRegistry)(nil)

// VerifyIDToken checks signature, issuer, audience and expiry of rawIDToken against the
// provider's discovered JWKS.
func (r *ProviderRegistry) VerifyIDToken(ctx context.Context, pc config.ProviderConfig, rawIDToken string) error {
	provider, err := r.discover(ctx, pc)
	if err != nil {
		return err
	}
	if r.httpClient != nil {
		ctx = oidc.ClientContext(ctx, r.httpClient)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: pc.ClientID})
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("failed to verify ID token: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("issuer", idToken.Issuer).Str("subject", idToken.Subject).Msg("ID token verified")
	return nil
}
