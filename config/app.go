package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/openprep/openprep/internal/api/middleware"
	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/quota"
)

// ErrNotConfigured marks an optional backend whose environment is absent.
var ErrNotConfigured = errors.New("not configured")

type App struct {
	Port             string
	QuestionBankPath string
	StatsCacheTTL    time.Duration
	Limits           quota.Limits
	Auth             middleware.JWTConfig
}

func LoadApp() (App, error) {
	cfg := App{
		Port:             envOr("PORT", "8080"),
		QuestionBankPath: os.Getenv("QUESTION_BANK_PATH"),
		Auth: middleware.JWTConfig{
			Secret:   os.Getenv("JWT_SECRET"),
			Issuer:   os.Getenv("JWT_ISSUER"),
			Audience: os.Getenv("JWT_AUDIENCE"),
		},
	}

	ttl, err := time.ParseDuration(envOr("STATS_CACHE_TTL", "5m"))
	if err != nil || ttl <= 0 {
		return App{}, fmt.Errorf("STATS_CACHE_TTL must be a positive duration: %q", os.Getenv("STATS_CACHE_TTL"))
	}
	cfg.StatsCacheTTL = ttl

	free, err := envInt("FREE_DAILY_INTERVIEWS", 3)
	if err != nil {
		return App{}, err
	}
	guest, err := envInt("GUEST_DAILY_INTERVIEWS", 2)
	if err != nil {
		return App{}, err
	}
	cfg.Limits = quota.Limits{
		models.PlanGuest: guest,
		models.PlanFree:  free,
		models.PlanPro:   0,
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer: %q", key, raw)
	}
	return n, nil
}
