package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
)

var _ OAuthFlow = (*ProviderRegistry)(nil)

var ErrProviderNotConfigured = errors.New("openid provider is not configured")

// ProviderRegistry builds oauth2 configs for providers on demand. Endpoints come from
// the provider properties, or from issuer discovery when they are not set. Discovered
// issuers are cached.
type ProviderRegistry struct {
	providers  config.ProviderSource
	httpClient *http.Client
	timeout    time.Duration
	discovered *lru.LRU[string, *oidc.Provider]
}

func NewProviderRegistry(providers config.ProviderSource, httpClient *http.Client, cfg config.AuthConfig) *ProviderRegistry {
	size := cfg.ProviderCacheSize
	if size <= 0 {
		size = 32
	}
	return &ProviderRegistry{
		providers:  providers,
		httpClient: httpClient,
		timeout:    cfg.CallTimeout,
		discovered: lru.NewLRU[string, *oidc.Provider](size, nil, cfg.ProviderCacheTTL),
	}
}

// AuthCodeURL builds the authorization redirect for providerID. A non-empty verifier adds
// an S256 PKCE challenge.
func (r *ProviderRegistry) AuthCodeURL(ctx context.Context, providerID, state, verifier string) (string, error) {
	pc := config.LoadProviderConfig(r.providers, providerID)
	oauthConfig, err := r.oauthConfig(ctx, pc)
	if err != nil {
		return "", err
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return oauthConfig.AuthCodeURL(state, opts...), nil
}

// Exchange defers all provider work until the token is acquired, so it runs under the
// attempt's call timeout.
func (r *ProviderRegistry) Exchange(providerID, code, verifier string) TokenAcquirer {
	return TokenAcquirerFunc(func(ctx context.Context) (*oauth2.Token, error) {
		pc := config.LoadProviderConfig(r.providers, providerID)
		oauthConfig, err := r.oauthConfig(ctx, pc)
		if err != nil {
			return nil, err
		}
		exchange := &CodeExchange{
			Config:     oauthConfig,
			Code:       code,
			Verifier:   verifier,
			HTTPClient: r.httpClient,
		}
		return exchange.AcquireToken(ctx)
	})
}

func (r *ProviderRegistry) oauthConfig(ctx context.Context, pc config.ProviderConfig) (*oauth2.Config, error) {
	if pc.ClientID == "" {
		return nil, fmt.Errorf("%w: %s: no client id", ErrProviderNotConfigured, pc.ProviderID)
	}

	endpoint := oauth2.Endpoint{AuthURL: pc.AuthURL, TokenURL: pc.TokenURL}
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		provider, err := r.discover(ctx, pc)
		if err != nil {
			return nil, err
		}
		discovered := provider.Endpoint()
		if endpoint.AuthURL == "" {
			endpoint.AuthURL = discovered.AuthURL
		}
		if endpoint.TokenURL == "" {
			endpoint.TokenURL = discovered.TokenURL
		}
	}

	return &oauth2.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  pc.RedirectURL,
		Scopes:       pc.Scopes,
	}, nil
}

func (r *ProviderRegistry) discover(ctx context.Context, pc config.ProviderConfig) (*oidc.Provider, error) {
	if pc.IssuerURL == "" {
		return nil, fmt.Errorf("%w: %s: no endpoints and no issuer url", ErrProviderNotConfigured, pc.ProviderID)
	}
	if provider, ok := r.discovered.Get(pc.IssuerURL); ok {
		return provider, nil
	}

	if r.httpClient != nil {
		ctx = oidc.ClientContext(ctx, r.httpClient)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	provider, err := oidc.NewProvider(ctx, pc.IssuerURL)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("issuer", pc.IssuerURL).Msg("Failed to discover OIDC provider")
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", pc.IssuerURL, err)
	}
	r.discovered.Add(pc.IssuerURL, provider)
	zerolog.Ctx(ctx).Debug().Str("issuer", pc.IssuerURL).Msg("OIDC provider discovered")
	return provider, nil
}
