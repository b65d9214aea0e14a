package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/logger"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/metrics"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
)

var _ AuthGenerator = (*Authenticator)(nil)

var errNoTokenAcquirer = errors.New("no token acquirer for attempt")

// Authenticator runs the sign-in pipeline: token, claims, policy, local identity.
type Authenticator struct {
	providers   config.ProviderSource
	extractor   *ClaimsExtractor
	policy      *PolicyEnforcer
	resolver    *IdentityResolver
	metrics     *metrics.AuthMetrics
	callTimeout time.Duration
}

func NewAuthenticator(
	providers config.ProviderSource,
	extractor *ClaimsExtractor,
	policy *PolicyEnforcer,
	resolver *IdentityResolver,
	m *metrics.AuthMetrics,
	callTimeout time.Duration,
) *Authenticator {
	return &Authenticator{
		providers:   providers,
		extractor:   extractor,
		policy:      policy,
		resolver:    resolver,
		metrics:     m,
		callTimeout: callTimeout,
	}
}

// Authenticate always returns exactly one outcome. The attempt keeps running when the
// caller's context is cancelled; each outbound call is bounded by the call timeout instead.
func (a *Authenticator) Authenticate(ctx context.Context, attempt AuthAttempt) (outcome models.AuthOutcome) {
	start := time.Now()
	ctx, _ = logger.WithAttempt(context.WithoutCancel(ctx), attempt.ProviderID)
	log := zerolog.Ctx(ctx)

	defer func() {
		outcome.ProviderID = attempt.ProviderID
		elapsed := time.Since(start)
		a.metrics.RecordOutcome(attempt.ProviderID, outcome, elapsed)

		event := log.Info()
		if outcome.IsRejected() {
			event = log.Warn().Err(outcome.Err)
		}
		event.Str("outcome", outcome.Label()).
			Str("username", outcome.Username).
			Bool("newUser", outcome.NewUser).
			Bool("persisted", outcome.Persisted).
			Dur("elapsed", elapsed).
			Msg("Authentication attempt finished")
	}()

	provider := config.LoadProviderConfig(a.providers, attempt.ProviderID)

	token, err := a.acquireToken(ctx, attempt.Tokens)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Rejected(models.ReasonTimeout, "", err)
		}
		return models.Rejected(models.ReasonTokenAcquisitionFailed, "", err)
	}

	claims, err := a.extractor.Extract(ctx, token, provider)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Rejected(models.ReasonTimeout, "", err)
		}
		return models.Rejected(models.ReasonExtractionFailed, extractionCause(err), err)
	}

	identity, err := DeriveIdentity(claims, provider)
	if err != nil {
		outcome = models.Rejected(models.ReasonExtractionFailed, models.CauseMissingIdentityClaims, err)
		outcome.Username = identity.Username
		outcome.Email = identity.Email
		return outcome
	}

	if decision := a.policy.CheckPolicy(identity, provider); !decision.Allowed {
		outcome = models.Rejected(models.ReasonPolicyDenied, decision.Cause,
			fmt.Errorf("policy denied %s via %s: %s", identity.Email, provider.ProviderID, decision.Cause))
		outcome.Username = identity.Username
		outcome.Email = identity.Email
		return outcome
	}

	return a.resolver.Resolve(ctx, identity, provider)
}

// acquireToken turns a panicking collaborator into an error and marks errors that
// happened after the call deadline as timeouts.
func (a *Authenticator) acquireToken(ctx context.Context, tokens TokenAcquirer) (token *oauth2.Token, err error) {
	if tokens == nil {
		return nil, errNoTokenAcquirer
	}
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().Interface("panic", r).Msg("Token acquisition panicked")
			token, err = nil, fmt.Errorf("token acquisition panicked: %v", r)
		}
	}()

	token, err = tokens.AcquireToken(callCtx)
	// oauth2 flattens transport errors, so the deadline has to be read off the context
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return token, err
}

func extractionCause(err error) string {
	switch {
	case errors.Is(err, ErrUserInfoFetchFailed):
		return models.CauseUserInfoFetchFailed
	case errors.Is(err, ErrMissingIdentityClaims):
		return models.CauseMissingIdentityClaims
	default:
		return models.CauseMissingOrInvalidToken
	}
}
