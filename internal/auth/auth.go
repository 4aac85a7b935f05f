// Package auth resolves bearer tokens into the caller identity used by the
// realtime channels. Tokens are HS256 JWTs carrying the user id in "sub" and
// the tenant in "tenant_id".
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/tbourn/storehub-realtime/internal/domain"
)

var (
	// ErrMissingToken indicates no token was presented.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken indicates the token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingClaims indicates a valid token without user or tenant.
	ErrMissingClaims = errors.New("token lacks user or tenant claim")
)

// Claims are the JWT claims the services issue for dashboard users.
type Claims struct {
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Resolver verifies tokens and maps their claims to a domain.Identity.
type Resolver struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewResolver builds a resolver. issuer and audience are only checked when
// non-empty.
func NewResolver(secret, issuer, audience string) (*Resolver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret is not configured")
	}
	return &Resolver{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   5 * time.Second,
		now:      time.Now,
	}, nil
}

// Resolve verifies token and returns the identity it carries.
func (r *Resolver) Resolve(token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(r.leeway),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	if r.audience != "" {
		opts = append(opts, jwt.WithAudience(r.audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := domain.Identity{
		UserID:      strings.TrimSpace(claims.Subject),
		TenantID:    strings.TrimSpace(claims.TenantID),
		DisplayName: strings.TrimSpace(claims.Name),
		Roles:       normalizeRoles(claims.Roles),
	}
	if !id.Valid() {
		return domain.Identity{}, ErrMissingClaims
	}
	return id, nil
}

// Issue signs a token for id. It backs local tooling and tests; production
// tokens come from the identity service.
func (r *Resolver) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	if !id.Valid() {
		return "", ErrMissingClaims
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := r.now().UTC()
	claims := Claims{
		TenantID: id.TenantID,
		Name:     id.DisplayName,
		Roles:    normalizeRoles(id.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if r.audience != "" {
		claims.Audience = jwt.ClaimStrings{r.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// TokenFromRequest returns the bearer token from the Authorization header,
// falling back to the access_token query parameter that browser WebSocket
// clients use because they cannot set headers.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
			return "", ErrInvalidToken
		}
		return strings.TrimSpace(tok), nil
	}
	if tok := strings.TrimSpace(r.URL.Query().Get("access_token")); tok != "" {
		return tok, nil
	}
	return "", ErrMissingToken
}

func normalizeRoles(roles []string) []string {
	out := lo.Uniq(lo.FilterMap(roles, func(r string, _ int) (string, bool) {
		r = strings.ToLower(strings.TrimSpace(r))
		return r, r != ""
	}))
	if len(out) == 0 {
		return nil
	}
	return out
}
