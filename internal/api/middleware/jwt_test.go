package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// echo reports what OptionalAuth put on the context.
func newAuthRouter(cfg JWTConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(OptionalAuth(cfg))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString("user_id"),
			"role":    c.GetString("role"),
			"plan":    c.GetString("plan"),
		})
	})
	return r
}

func call(r *gin.Engine, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestOptionalAuthAllowsAnonymous(t *testing.T) {
	rec := call(newAuthRouter(JWTConfig{Secret: "s"}), "")
	if rec.Code != http.StatusOK || rec.Body.String() != `{"plan":"","role":"","user_id":""}` {
		t.Fatalf("unexpected anonymous response %d %s", rec.Code, rec.Body.String())
	}
}

func TestOptionalAuthReadsClaims(t *testing.T) {
	tok := sign(t, "s", jwt.MapClaims{
		"sub":          "user-1",
		"app_metadata": map[string]any{"role": "admin", "plan": "pro"},
	})
	rec := call(newAuthRouter(JWTConfig{Secret: "s"}), "Bearer "+tok)
	if rec.Code != http.StatusOK || rec.Body.String() != `{"plan":"pro","role":"admin","user_id":"user-1"}` {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	tok = sign(t, "s", jwt.MapClaims{"sub": "user-2"})
	rec = call(newAuthRouter(JWTConfig{Secret: "s"}), "Bearer "+tok)
	if rec.Body.String() != `{"plan":"free","role":"user","user_id":"user-2"}` {
		t.Fatalf("expected default role and plan, got %s", rec.Body.String())
	}
}

func TestOptionalAuthRejectsBadTokens(t *testing.T) {
	cases := []struct {
		name  string
		cfg   JWTConfig
		authz string
	}{
		{"not bearer", JWTConfig{Secret: "s"}, "Basic abc"},
		{"empty bearer", JWTConfig{Secret: "s"}, "Bearer "},
		{"wrong secret", JWTConfig{Secret: "s"}, "Bearer " + sign(t, "other", jwt.MapClaims{"sub": "u"})},
		{"expired", JWTConfig{Secret: "s"}, "Bearer " + sign(t, "s", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"no subject", JWTConfig{Secret: "s"}, "Bearer " + sign(t, "s", jwt.MapClaims{})},
		{"issuer", JWTConfig{Secret: "s", Issuer: "openprep"}, "Bearer " + sign(t, "s", jwt.MapClaims{"sub": "u", "iss": "elsewhere"})},
		{"audience", JWTConfig{Secret: "s", Audience: "web"}, "Bearer " + sign(t, "s", jwt.MapClaims{"sub": "u", "aud": "mobile"})},
		{"not configured", JWTConfig{}, "Bearer " + sign(t, "s", jwt.MapClaims{"sub": "u"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(newAuthRouter(tc.cfg), tc.authz)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOptionalAuthChecksIssuerAndAudience(t *testing.T) {
	cfg := JWTConfig{Secret: "s", Issuer: "openprep", Audience: "web"}
	tok := sign(t, "s", jwt.MapClaims{"sub": "u", "iss": "openprep", "aud": []string{"web", "mobile"}})
	if rec := call(newAuthRouter(cfg), "Bearer "+tok); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set("role", role)
		}
	})
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for role, want := range map[string]int{"": http.StatusForbidden, "user": http.StatusForbidden, " Admin ": http.StatusNoContent} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("X-Test-Role", role)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("role %q: expected %d, got %d", role, want, rec.Code)
		}
	}
}
