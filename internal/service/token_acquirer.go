package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var _ TokenAcquirer = (*CodeExchange)(nil)

// TokenAcquirerFunc adapts a function to TokenAcquirer.
type TokenAcquirerFunc func(ctx context.Context) (*oauth2.Token, error)

func (f TokenAcquirerFunc) AcquireToken(ctx context.Context) (*oauth2.Token, error) {
	return f(ctx)
}

// CodeExchange redeems an authorization code at the provider's token endpoint.
// Verifier is the PKCE code verifier and may be empty.
type CodeExchange struct {
	Config     *oauth2.Config
	Code       string
	Verifier   string
	HTTPClient *http.Client
}

func (c *CodeExchange) AcquireToken(ctx context.Context) (*oauth2.Token, error) {
	if c.Code == "" {
		return nil, errors.New("authorization code is empty")
	}
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}

	var opts []oauth2.AuthCodeOption
	if c.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(c.Verifier))
	}

	token, err := c.Config.Exchange(ctx, c.Code, opts...)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Error exchanging OAuth code for token")
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	if !token.Valid() {
		zerolog.Ctx(ctx).Warn().Msg("Received invalid OAuth token after exchange")
		return nil, errors.New("received invalid token")
	}
	zerolog.Ctx(ctx).Debug().Int("accessTokenLength", len(token.AccessToken)).Msg("OAuth token obtained")
	return token, nil
}
