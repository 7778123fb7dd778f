package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/openprep/openprep/config"
	"github.com/openprep/openprep/internal/api/handlers"
	"github.com/openprep/openprep/internal/api/middleware"
	"github.com/openprep/openprep/internal/api/routes"
	"github.com/openprep/openprep/internal/cache"
	"github.com/openprep/openprep/internal/logger"
	"github.com/openprep/openprep/internal/notify"
	"github.com/openprep/openprep/internal/questionbank"
	"github.com/openprep/openprep/internal/quota"
	mongorepo "github.com/openprep/openprep/internal/repositories/mongo"
	pgrepo "github.com/openprep/openprep/internal/repositories/postgres"
	"github.com/openprep/openprep/internal/services"
	"github.com/openprep/openprep/internal/workers"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	cfg, err := config.LoadApp()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	bank := questionbank.Default()
	if cfg.QuestionBankPath != "" {
		if bank, err = questionbank.Load(cfg.QuestionBankPath); err != nil {
			log.WithError(err).WithField("path", cfg.QuestionBankPath).Fatal("question bank load error")
		}
	}

	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	var profiles pgrepo.ResumeProfileRepository
	switch err := config.InitPostgres(); {
	case err == nil:
		profiles = pgrepo.NewResumeProfileRepo(config.PostgresDB)
		log.Info("PostgreSQL connected")
	case errors.Is(err, config.ErrNotConfigured):
		log.Warn("PostgreSQL not configured; stored resume profiles disabled")
	default:
		log.WithError(err).Fatal("PostgreSQL init error")
	}

	var (
		c        cache.Cache      = cache.Noop{}
		limiter  quota.Limiter    = quota.Unlimited{}
		notifier notify.Publisher = notify.Noop{}
	)
	switch err := config.InitRedis(); {
	case err == nil:
		c = cache.NewRedisCache(config.RedisClient)
		limiter = quota.NewRedis(config.RedisClient, cfg.Limits)
		notifier = notify.NewRedisPublisher(config.RedisClient)
		log.Info("Redis connected")
	case errors.Is(err, config.ErrNotConfigured):
		log.Warn("Redis not configured; report cache, quotas and completion events disabled")
	default:
		log.WithError(err).Fatal("Redis init error")
	}

	repo := mongorepo.NewInterviewRepo(config.MongoDatabase())
	interviews := services.NewInterviewService(services.InterviewDeps{
		Repo:     repo,
		Bank:     bank,
		Profiles: profiles,
		Quota:    limiter,
		Cache:    c,
		Notifier: notifier,
		Logger:   log,
	})
	reports := services.NewReportService(repo, c, cfg.StatsCacheTTL, log)

	deps := routes.Deps{
		Interview: handlers.NewInterviewHandler(interviews, reports),
		Auth:      cfg.Auth,
	}
	if profiles != nil {
		deps.Profile = handlers.NewProfileHandler(services.NewProfileService(profiles))
	}
	if cfg.Auth.Secret == "" {
		log.Warn("JWT_SECRET not set; only anonymous interviews are possible")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(log), gin.Recovery())
	routes.RegisterRoutes(r, deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.RedisClient != nil {
		pool := &workers.ReportWorkerPool{
			Redis:   config.RedisClient,
			Reports: reports,
			Logger:  log,
		}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("report worker init error")
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server error")
		}
	}()

	<-ctx.Done()
	shutdown(log, srv)
}

func shutdown(log *logrus.Logger, srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http server shutdown error")
	}
	if config.RedisClient != nil {
		_ = config.RedisClient.Close()
	}
	if err := config.MongoClient.Disconnect(ctx); err != nil {
		log.WithError(err).Error("MongoDB disconnect error")
	}
	log.Info("shutdown complete")
}
