// Package auth validates bearer tokens presented to the context API.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
	// TenantID, when set, is the only tenant accepted in the tenant_id claim.
	TenantID string
	// Leeway tolerates clock skew between the identity service and this one.
	Leeway time.Duration
}

// Claims is the caller identity attached to an authenticated request.
type Claims struct {
	Subject   string
	TenantID  string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

// ErrMissingToken is returned when the Authorization header is absent.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken wraps parsing and validation errors.
var ErrInvalidToken = errors.New("invalid bearer token")

// sessionToken is the token body issued to coach clients.
type sessionToken struct {
	jwt.RegisteredClaims
	TenantID string    `json:"tenant_id"`
	Scopes   scopeList `json:"scopes"`
}

// scopeList accepts scopes as a JSON array or as one space separated string.
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("scopes: %w", err)
	}
	*s = strings.Fields(joined)
	return nil
}

// Parse validates a JWT and returns the caller identity it carries.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var body sessionToken
	if _, err := jwt.ParseWithClaims(token, &body, cfg.signingKey, cfg.parserOptions()...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	switch {
	case body.Subject == "":
		return nil, fmt.Errorf("%w: sub claim is empty", ErrInvalidToken)
	case body.TenantID == "":
		return nil, fmt.Errorf("%w: tenant_id claim is empty", ErrInvalidToken)
	case cfg.TenantID != "" && body.TenantID != cfg.TenantID:
		return nil, fmt.Errorf("%w: tenant %s not served here", ErrInvalidToken, body.TenantID)
	}

	claims := &Claims{
		Subject:   body.Subject,
		TenantID:  body.TenantID,
		Scopes:    make(map[string]struct{}, len(body.Scopes)),
		ExpiresAt: body.ExpiresAt.Time,
	}
	for _, scope := range body.Scopes {
		if scope = strings.TrimSpace(scope); scope != "" {
			claims.Scopes[scope] = struct{}{}
		}
	}
	return claims, nil
}

func (cfg Config) signingKey(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return []byte(cfg.Secret), nil
}

func (cfg Config) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	return opts
}

// HasScope reports whether the claim set includes the provided scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}
