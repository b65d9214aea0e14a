package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Per-provider property keys. The viper source resolves them as
// OPENID_<PROVIDER>_<KEY>, e.g. OPENID_GOOGLE_USERINFOURI.
const (
	PropUserInfoURI              = "userInfoUri"
	PropAllowedEmailDomains      = "allowedEmailDomains"
	PropShouldFilterEmailDomains = "shouldFilterEmailDomains"
	PropUserAutoEnabled          = "userAutoEnabled"
	PropUserAutoVerified         = "userAutoVerified"
	PropForceUserCreate          = "forceUserCreate"
	PropVerifyIDToken            = "verifyIdToken"

	PropUsernamePattern    = "usernamePattern"
	PropEmailProperty      = "emailProperty"
	PropGivenNameProperty  = "givenNameProperty"
	PropFamilyNameProperty = "familyNameProperty"

	PropClientID     = "clientId"
	PropClientSecret = "clientSecret"
	PropIssuerURL    = "issuerUrl"
	PropAuthURL      = "authUrl"
	PropTokenURL     = "tokenUrl"
	PropRedirectURL  = "redirectUrl"
	PropScopes       = "scopes"
)

const (
	DefaultUsernamePattern    = "[sub]"
	DefaultEmailProperty      = "email"
	DefaultGivenNameProperty  = "given_name"
	DefaultFamilyNameProperty = "family_name"
)

// ProviderSource is the per-provider configuration lookup.
type ProviderSource interface {
	// Property returns the raw string value of key for the provider, or "" when unset.
	Property(providerID, key string) string
	// IsEnabled reports whether the provider is on the enabled list.
	IsEnabled(providerID string) bool
}

// ClaimMapping names the claims an identity is derived from.
// The username pattern substitutes [providerId] and [<claim>] placeholders.
type ClaimMapping struct {
	UsernamePattern    string
	EmailProperty      string
	GivenNameProperty  string
	FamilyNameProperty string
}

// ProviderConfig is the immutable view of one OpenID provider used for a single attempt.
type ProviderConfig struct {
	ProviderID               string
	UserInfoURI              string
	AllowedEmailDomains      map[string]struct{}
	ShouldFilterEmailDomains bool
	Enabled                  bool
	UserAutoEnabled          bool
	UserAutoVerified         bool
	ForceUserCreate          bool
	VerifyIDToken            bool

	Claims ClaimMapping

	ClientID     string
	ClientSecret string
	IssuerURL    string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// IsDomainAllowed does a case-insensitive exact match against the allow-list.
func (p ProviderConfig) IsDomainAllowed(domain string) bool {
	if domain == "" {
		return false
	}
	for allowed := range p.AllowedEmailDomains {
		if strings.EqualFold(allowed, domain) {
			return true
		}
	}
	return false
}

// LoadProviderConfig snapshots the provider's properties from src.
func LoadProviderConfig(src ProviderSource, providerID string) ProviderConfig {
	prop := func(key string) string {
		return strings.TrimSpace(src.Property(providerID, key))
	}

	pc := ProviderConfig{
		ProviderID:               providerID,
		UserInfoURI:              prop(PropUserInfoURI),
		AllowedEmailDomains:      make(map[string]struct{}),
		ShouldFilterEmailDomains: parseBool(prop(PropShouldFilterEmailDomains)),
		Enabled:                  src.IsEnabled(providerID),
		UserAutoEnabled:          parseBool(prop(PropUserAutoEnabled)),
		UserAutoVerified:         parseBool(prop(PropUserAutoVerified)),
		ForceUserCreate:          parseBool(prop(PropForceUserCreate)),
		VerifyIDToken:            parseBool(prop(PropVerifyIDToken)),
		Claims: ClaimMapping{
			UsernamePattern:    withDefault(prop(PropUsernamePattern), DefaultUsernamePattern),
			EmailProperty:      withDefault(prop(PropEmailProperty), DefaultEmailProperty),
			GivenNameProperty:  withDefault(prop(PropGivenNameProperty), DefaultGivenNameProperty),
			FamilyNameProperty: withDefault(prop(PropFamilyNameProperty), DefaultFamilyNameProperty),
		},
		ClientID:     prop(PropClientID),
		ClientSecret: prop(PropClientSecret),
		IssuerURL:    prop(PropIssuerURL),
		AuthURL:      prop(PropAuthURL),
		TokenURL:     prop(PropTokenURL),
		RedirectURL:  prop(PropRedirectURL),
		Scopes:       splitList(prop(PropScopes)),
	}
	for _, d := range splitList(prop(PropAllowedEmailDomains)) {
		pc.AllowedEmailDomains[strings.ToLower(d)] = struct{}{}
	}
	if len(pc.Scopes) == 0 {
		pc.Scopes = []string{"openid", "profile", "email"}
	}
	return pc
}

// ViperProviderSource reads provider properties from viper keys OPENID_<PROVIDER>_<KEY>
// and the enabled list from OPENID_ENABLED (comma separated).
type ViperProviderSource struct {
	v *viper.Viper
}

func NewViperProviderSource(v *viper.Viper) *ViperProviderSource {
	return &ViperProviderSource{v: v}
}

func (s *ViperProviderSource) Property(providerID, key string) string {
	return s.v.GetString(propertyKey(providerID, key))
}

func (s *ViperProviderSource) IsEnabled(providerID string) bool {
	for _, id := range splitList(s.v.GetString("OPENID_ENABLED")) {
		if strings.EqualFold(id, providerID) {
			return true
		}
	}
	return false
}

// StaticProviderSource is an in-memory source keyed by provider then property.
type StaticProviderSource struct {
	Properties map[string]map[string]string
	Enabled    []string
}

func (s StaticProviderSource) Property(providerID, key string) string {
	return s.Properties[providerID][key]
}

func (s StaticProviderSource) IsEnabled(providerID string) bool {
	for _, id := range s.Enabled {
		if id == providerID {
			return true
		}
	}
	return false
}

func propertyKey(providerID, key string) string {
	id := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(providerID))
	return "OPENID_" + id + "_" + strings.ToUpper(key)
}

// parseBool is true only for a case-insensitive "true"; anything else is false.
func parseBool(s string) bool {
	return strings.EqualFold(s, "true")
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
