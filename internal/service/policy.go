package service

import (
	"strings"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
)

// PolicyEnforcer decides whether an identity may sign in through a provider.
// It has no state and no side effects.
type PolicyEnforcer struct{}

func NewPolicyEnforcer() *PolicyEnforcer {
	return &PolicyEnforcer{}
}

// CheckPolicy runs the domain filter first, then the provider enabled check.
func (p *PolicyEnforcer) CheckPolicy(identity models.Identity, provider config.ProviderConfig) models.PolicyDecision {
	if provider.ShouldFilterEmailDomains {
		domain, ok := EmailDomain(identity.Email)
		if !ok || !provider.IsDomainAllowed(domain) {
			return models.Deny(models.CauseDomainNotAllowed)
		}
	}
	if !provider.Enabled {
		return models.Deny(models.CauseProviderDisabled)
	}
	return models.Allow()
}

// EmailDomain returns the text after the first '@'. ok is false when there is no '@'
// or nothing follows it.
func EmailDomain(email string) (string, bool) {
	_, domain, found := strings.Cut(email, "@")
	if !found || domain == "" {
		return "", false
	}
	return domain, true
}
