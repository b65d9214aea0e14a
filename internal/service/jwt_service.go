package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
)

var _ SessionGenerator = (*JWTService)(nil)

// SessionClaims are carried by the session token issued after a successful sign-in.
type SessionClaims struct {
	Email      string `json:"email"`
	ProviderID string `json:"provider"`
	jwt.RegisteredClaims
}

// JWTService signs HS256 session tokens.
type JWTService struct {
	jwtSecret []byte
	duration  time.Duration
	issuer    string
	audience  string
}

// NewJWTService creates a JWTService
func NewJWTService(secret string, cfg config.SessionConfig) *JWTService {
	duration := cfg.TokenDuration
	if duration <= 0 {
		duration = time.Hour
	}
	return &JWTService{
		jwtSecret: []byte(secret),
		duration:  duration,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
	}
}

// GenerateToken creates a new JWT for a user
func (s *JWTService) GenerateToken(user *models.LocalUser, providerID string) (string, time.Time, error) {
	if user == nil || user.Username == "" {
		return "", time.Time{}, errors.New("cannot issue session for empty user")
	}
	now := time.Now()
	exp := now.Add(s.duration)
	claims := SessionClaims{
		Email:      user.Email,
		ProviderID: providerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, exp, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.KeyFunc,
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// KeyFunc accepts HMAC-signed tokens only.
func (s *JWTService) KeyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.jwtSecret, nil
}
