package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/storehub-realtime/internal/auth"
	"github.com/tbourn/storehub-realtime/internal/domain"
)

const identityKey = "identity"

// IdentityResolver verifies a bearer token.
type IdentityResolver interface {
	Resolve(token string) (domain.Identity, error)
}

// Authenticate resolves the caller from the Authorization header (or the
// access_token query parameter) and stores the identity in the context,
// plus "userID" for the rate limiter and access log. Failures are 401.
func Authenticate(r IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := auth.TokenFromRequest(c.Request)
		if err == nil {
			var id domain.Identity
			if id, err = r.Resolve(tok); err == nil {
				c.Set(identityKey, id)
				c.Set("userID", id.UserID)
				c.Next()
				return
			}
		}
		msg := "invalid token"
		if errors.Is(err, auth.ErrMissingToken) {
			msg = "missing bearer token"
		}
		c.Header("WWW-Authenticate", `Bearer realm="storehub"`)
		abortJSON(c, http.StatusUnauthorized, "unauthorized", msg)
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}

// RequireAPIKey guards service-to-service endpoints with a shared key in
// header. An empty key disables the endpoint entirely (403).
func RequireAPIKey(header, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			abortJSON(c, http.StatusForbidden, "forbidden", "endpoint disabled")
			return
		}
		got := strings.TrimSpace(c.GetHeader(header))
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid "+header)
			return
		}
		c.Next()
	}
}
