package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/jmehdipour/activitylog-webhook/internal/config"
	echo "github.com/labstack/echo/v4"
)

const scopeKey = "scope"

// ScopeFromCtx extracts the authenticated scope set by APIKeyMiddleware.
func ScopeFromCtx(c echo.Context) (string, bool) {
	s, ok := c.Get(scopeKey).(string)
	return s, ok && s != ""
}

// APIKeyMiddleware authenticates requests using the X-API-Key header.
// Each configured key is bound to one scope; on success the scope is stored in context.
func APIKeyMiddleware(keys []config.APIKeyConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			scope := lookup(keys, key)
			if scope == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set(scopeKey, scope)
			return next(c)
		}
	}
}

func lookup(keys []config.APIKeyConfig, key string) string {
	for _, k := range keys {
		if k.Key == "" || k.Scope == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(key)) == 1 {
			return k.Scope
		}
	}
	return ""
}
