package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// ErrMissingSubject is returned when a token carries no user id.
var ErrMissingSubject = errors.New("token subject is required")

// MintIdentityToken issues a signed identity token. The API only verifies
// tokens; minting backs local development and tests.
func MintIdentityToken(cfg config.JWTConfig, now time.Time, payload IdentityPayload) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("jwt issuer is required")
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", fmt.Errorf("jwt expiration minutes must be positive")
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return "", ErrMissingSubject
	}

	issuedAt := jwt.NewNumericDate(now)
	expiry := jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute))

	audience := payload.Audience
	if audience == "" {
		audience = cfg.Audience
	}
	registered := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   payload.UserID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiry,
		ID:        uuid.NewString(),
	}
	if audience != "" {
		registered.Audience = jwt.ClaimStrings{audience}
	}

	claims := IdentityClaims{
		Email:            strings.ToLower(strings.TrimSpace(payload.Email)),
		Name:             payload.Name,
		Picture:          payload.Picture,
		RegisteredClaims: registered,
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseIdentityToken validates the JWT string and returns typed claims.
func ParseIdentityToken(cfg config.JWTConfig, tokenString string) (*IdentityClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &IdentityClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}
	claims.Email = strings.ToLower(strings.TrimSpace(claims.Email))

	return claims, nil
}
