package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/openprep/openprep/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type JWTConfig struct {
	Secret   string
	Issuer   string // optional
	Audience string // optional
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata"` // {"role":"admin","plan":"pro"}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
		Code:    utils.CodeUnauthorized,
		Message: msg,
	})
}

// OptionalAuth identifies the caller when a bearer token is present and lets
// anonymous requests through untouched. A token that is present but invalid
// is rejected rather than downgraded to anonymous.
func OptionalAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			unauthorized(c, "malformed authorization header")
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		if cfg.Secret == "" {
			unauthorized(c, "authentication is not configured")
			return
		}

		claims := &tokenClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(cfg.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || tok == nil || !tok.Valid {
			unauthorized(c, "invalid token")
			return
		}

		if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
			unauthorized(c, "invalid token issuer")
			return
		}
		if cfg.Audience != "" && !slices.Contains(claims.Audience, cfg.Audience) {
			unauthorized(c, "invalid token audience")
			return
		}

		userID := claims.Subject
		if userID == "" {
			unauthorized(c, "missing subject")
			return
		}

		c.Set("user_id", userID)
		c.Set("owner_id", userID)
		c.Set("role", metadataString(claims.AppMetadata, "role", "user"))
		c.Set("plan", metadataString(claims.AppMetadata, "plan", "free"))
		c.Next()
	}
}

// RequireAuth rejects requests OptionalAuth did not identify.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, ok := c.Get("user_id"); ok {
			if s, _ := v.(string); s != "" {
				c.Next()
				return
			}
		}
		unauthorized(c, "unauthorized")
	}
}

func metadataString(md map[string]any, key, def string) string {
	if md == nil {
		return def
	}
	if s, ok := md[key].(string); ok && s != "" {
		return s
	}
	return def
}
