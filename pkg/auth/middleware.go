package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	// HeaderAPIKey carries the shared API key on HTTP requests.
	HeaderAPIKey = "X-Kitty-Api-Key"

	// HeaderActor lets an agent announce the name recorded in history.
	HeaderActor = "X-Kitty-Actor"
)

// actorContextKey is the Echo context key holding the resolved actor.
const actorContextKey = "kitty_actor"

// APIKeyMiddleware authenticates requests against a set of shared keys
// and resolves the calling actor into the request context.
//
// With an empty key set the middleware trusts the transport (local
// single-host deployments) and only resolves the actor. Key comparison
// runs over SHA256 digests in constant time, so neither key length nor
// prefix leaks through timing.
func APIKeyMiddleware(keys []string) echo.MiddlewareFunc {
	digests := make([][sha256.Size]byte, len(keys))
	for i, k := range keys {
		digests[i] = sha256.Sum256([]byte(k))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(digests) > 0 {
				presented := sha256.Sum256([]byte(c.Request().Header.Get(HeaderAPIKey)))
				matched := false
				for _, d := range digests {
					if subtle.ConstantTimeCompare(presented[:], d[:]) == 1 {
						matched = true
					}
				}
				if !matched {
					return c.JSON(http.StatusUnauthorized, map[string]any{
						"error": map[string]any{
							"message": "authentication failed: missing or invalid API key",
						},
					})
				}
			}

			actor := c.Request().Header.Get(HeaderActor)
			if actor == "" {
				actor = SystemActor()
			}
			c.Set(actorContextKey, actor)
			return next(c)
		}
	}
}

// ActorFromContext returns the actor resolved by APIKeyMiddleware, or
// FallbackActor when the middleware did not run.
func ActorFromContext(c echo.Context) string {
	if actor, ok := c.Get(actorContextKey).(string); ok && actor != "" {
		return actor
	}
	return FallbackActor
}
