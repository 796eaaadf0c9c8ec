package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/socio/backend/internal/events"
	"github.com/anonto42/socio/backend/internal/mailer"
	"github.com/anonto42/socio/backend/internal/metrics"
	"github.com/anonto42/socio/backend/internal/push"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/anonto42/socio/backend/internal/router"
	"github.com/anonto42/socio/backend/internal/storage"
	"github.com/anonto42/socio/backend/internal/validators"
	"github.com/anonto42/socio/backend/pkg/config"
	"github.com/anonto42/socio/backend/pkg/firebase"
	"github.com/anonto42/socio/backend/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize databases", zap.Error(err))
	}
	defer db.CloseDB() // Ensure database connections are closed when main exits

	postRepo := repositories.NewMongoPostRepository(db.Mongo.Database(cfg.MongoDatabase))
	if err := postRepo.EnsureIndexes(ctx); err != nil {
		log.Warn("creating post indexes failed", zap.Error(err))
	}

	infra := router.Infra{
		Config:   cfg,
		Postgres: db.Postgres,
		Posts:    postRepo,
		Mongo:    db.Mongo,
		Redis:    db.Redis,
		Log:      log,
	}

	// Firebase is optional: without credentials, Firebase login and mobile
	// push are disabled.
	if cfg.FirebaseCredentialsPath != "" {
		app, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			log.Fatal("failed to initialize Firebase", zap.Error(err))
		}
		infra.Firebase = app.AuthClient
		infra.Pusher = push.NewFCMPusher(app.MessagingClient, repositories.NewPostgresDeviceTokenRepository(db.Postgres), log.Named("push"))
		log.Info("Firebase initialized")
	}

	switch cfg.StorageBackend {
	case "s3":
		infra.Store, err = storage.NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3PublicRead)
	default:
		infra.Store, err = storage.NewLocalStore(cfg.MediaRoot, cfg.MediaURLPrefix)
	}
	if err != nil {
		log.Fatal("failed to initialize media storage", zap.Error(err))
	}

	infra.Events, err = events.New(cfg.EventsBackend, cfg.KafkaBrokers, cfg.NatsURL)
	if err != nil {
		log.Fatal("failed to initialize event publisher", zap.Error(err))
	}
	defer infra.Events.Close()

	if cfg.BrevoAPIKey != "" {
		infra.Mailer = mailer.NewBrevoMailer(cfg.BrevoAPIKey, cfg.MailFromEmail, cfg.MailFromName)
	} else {
		log.Warn("BREVO_API_KEY not set, confirmation emails are only logged")
		infra.Mailer = mailer.NewLogMailer(log.Named("mail"))
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()

	// Setup global middleware
	config.SetupMiddleware(e, log)

	// Setup routes and dependencies
	app, err := router.SetupRoutes(e, infra)
	if err != nil {
		log.Fatal("failed to set up routes", zap.Error(err))
	}
	if err := app.Hub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to the websocket relay", zap.Error(err))
	}

	metrics.Init()
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.Port), zap.String("metrics_port", cfg.MetricsPort))

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.Hub.Shutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown", zap.Error(err))
	}
}
