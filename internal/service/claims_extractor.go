package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
)

var (
	ErrMissingOrInvalidToken = errors.New("missing or invalid identity token")
	ErrUserInfoFetchFailed   = errors.New("userinfo fetch failed")
	ErrMissingIdentityClaims = errors.New("username or email missing from claims")
)

// Token response fields an identity token is looked up under, in order.
var idTokenFields = []string{"id_token", "idToken"}

var placeholderPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// ClaimsExtractor turns a token response into a flat claim set, enriched from the
// provider's UserInfo endpoint when one is configured.
//
// The identity token's signature is only checked when the provider sets verifyIdToken;
// otherwise the claims are trusted because the token was just redeemed directly from the
// provider's token endpoint over TLS.
type ClaimsExtractor struct {
	httpClient *http.Client
	verifier   IDTokenVerifier
	timeout    time.Duration
	parser     *jwt.Parser
}

func NewClaimsExtractor(httpClient *http.Client, verifier IDTokenVerifier, timeout time.Duration) *ClaimsExtractor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ClaimsExtractor{
		httpClient: httpClient,
		verifier:   verifier,
		timeout:    timeout,
		parser:     jwt.NewParser(),
	}
}

// Extract decodes the identity token of token and merges UserInfo claims over it.
func (e *ClaimsExtractor) Extract(ctx context.Context, token *oauth2.Token, provider config.ProviderConfig) (models.IdentityClaims, error) {
	logger := zerolog.Ctx(ctx)

	rawIDToken := findIDToken(token)
	if rawIDToken == "" {
		logger.Warn().Msg("ID token missing from token response")
		return nil, fmt.Errorf("%w: no identity token in token response", ErrMissingOrInvalidToken)
	}

	if provider.VerifyIDToken {
		if e.verifier == nil {
			return nil, fmt.Errorf("%w: verification requested but no verifier configured", ErrMissingOrInvalidToken)
		}
		vctx, cancel := context.WithTimeout(ctx, e.timeout)
		err := e.verifier.VerifyIDToken(vctx, provider, rawIDToken)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to verify ID token")
			return nil, fmt.Errorf("%w: %w", ErrMissingOrInvalidToken, err)
		}
	}

	claims, err := e.decodeIDToken(rawIDToken)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to decode ID token")
		return nil, err
	}
	logger.Debug().Int("claims", len(claims)).Msg("ID token decoded")

	if provider.UserInfoURI != "" {
		info, err := e.fetchUserInfo(ctx, provider.UserInfoURI, token.AccessToken)
		if err != nil {
			logger.Error().Err(err).Str("userInfoUri", provider.UserInfoURI).Msg("Error fetching user info")
			return nil, err
		}
		claims.Merge(info)
	}
	return claims, nil
}

func (e *ClaimsExtractor) decodeIDToken(rawIDToken string) (models.IdentityClaims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := e.parser.ParseUnverified(rawIDToken, mapClaims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingOrInvalidToken, err)
	}
	return flattenClaims(mapClaims), nil
}

// fetchUserInfo calls the UserInfo endpoint with the access token as bearer credential.
// See https://openid.net/specs/openid-connect-core-1_0.html#UserInfo
func (e *ClaimsExtractor) fetchUserInfo(ctx context.Context, userInfoURI, accessToken string) (models.IdentityClaims, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURI, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfoFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfoFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		zerolog.Ctx(ctx).Warn().Int("statusCode", resp.StatusCode).Str("body", string(bodyBytes)).Msg("Error response from userinfo endpoint")
		return nil, fmt.Errorf("%w: status %s", ErrUserInfoFetchFailed, resp.Status)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUserInfoFetchFailed, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrUserInfoFetchFailed)
	}
	return flattenClaims(body), nil
}

// DeriveIdentity applies the provider's claim mapping. Username and email must both
// be non-empty.
func DeriveIdentity(claims models.IdentityClaims, provider config.ProviderConfig) (models.Identity, error) {
	mapping := provider.Claims
	identity := models.Identity{
		ProviderID: provider.ProviderID,
		Subject:    claims["sub"],
		Username:   expandUsername(mapping.UsernamePattern, claims, provider.ProviderID),
		Email:      strings.TrimSpace(claims[mapping.EmailProperty]),
		FirstName:  strings.TrimSpace(claims[mapping.GivenNameProperty]),
		LastName:   strings.TrimSpace(claims[mapping.FamilyNameProperty]),
		Claims:     claims,
	}
	if identity.Username == "" || identity.Email == "" {
		return identity, fmt.Errorf("%w: username=%q email=%q", ErrMissingIdentityClaims, identity.Username, identity.Email)
	}
	return identity, nil
}

// expandUsername substitutes [providerId] and [<claim>] in pattern. A placeholder naming
// an absent or empty claim makes the whole username empty.
func expandUsername(pattern string, claims models.IdentityClaims, providerID string) string {
	missing := false
	username := placeholderPattern.ReplaceAllStringFunc(pattern, func(m string) string {
		name := m[1 : len(m)-1]
		if name == "providerId" {
			return providerID
		}
		v := strings.TrimSpace(claims[name])
		if v == "" {
			missing = true
		}
		return v
	})
	if missing {
		return ""
	}
	return strings.TrimSpace(username)
}

func findIDToken(token *oauth2.Token) string {
	if token == nil {
		return ""
	}
	for _, field := range idTokenFields {
		if raw, ok := token.Extra(field).(string); ok && raw != "" {
			return raw
		}
	}
	return ""
}

func flattenClaims(in map[string]any) models.IdentityClaims {
	out := make(models.IdentityClaims, len(in))
	for k, v := range in {
		if s, ok := claimString(v); ok {
			out[k] = s
		}
	}
	return out
}

func claimString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
