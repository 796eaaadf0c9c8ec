package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anonto42/socio/backend/internal/cache"
	"github.com/anonto42/socio/backend/internal/events"
	"github.com/anonto42/socio/backend/internal/handlers"
	"github.com/anonto42/socio/backend/internal/mailer"
	"github.com/anonto42/socio/backend/internal/middleware"
	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/realtime"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/anonto42/socio/backend/internal/services"
	"github.com/anonto42/socio/backend/internal/sharing"
	"github.com/anonto42/socio/backend/internal/storage"
	"github.com/anonto42/socio/backend/pkg/config"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// presenceTTL bounds how long a user stays online without a heartbeat.
const presenceTTL = 90 * time.Second

// Infra is the set of connections and adapters the routes are built on.
type Infra struct {
	Config   *config.Config
	Postgres *gorm.DB
	Posts    repositories.PostRepository
	// Mongo is only pinged by /health and may be nil.
	Mongo  *mongo.Client
	Redis  *redis.Client
	Store  storage.Store
	Events events.Publisher
	Mailer mailer.Mailer
	// Firebase and Pusher are nil when no Firebase credentials are configured.
	Firebase services.IDTokenVerifier
	Pusher   services.Pusher
	Log      *zap.Logger
}

// App exposes what main needs to run and stop after the routes are set up.
type App struct {
	Hub *realtime.Hub
}

// SetupRoutes migrates the relational schema, builds every service and
// registers all application routes.
func SetupRoutes(e *echo.Echo, infra Infra) (*App, error) {
	cfg, log := infra.Config, infra.Log

	if err := infra.Postgres.AutoMigrate(models.Tables()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	log.Info("PostgreSQL auto-migrations completed")

	// --- Repositories ---
	pgdb := infra.Postgres
	userRepo := repositories.NewPostgresUserRepository(pgdb)
	pendingRepo := repositories.NewPostgresPendingSignupRepository(pgdb)
	friendshipRepo := repositories.NewPostgresFriendshipRepository(pgdb)
	likeRepo := repositories.NewPostgresLikeRepository(pgdb)
	commentRepo := repositories.NewPostgresCommentRepository(pgdb)
	bookmarkRepo := repositories.NewPostgresBookmarkRepository(pgdb)
	messageRepo := repositories.NewPostgresMessageRepository(pgdb)
	notificationRepo := repositories.NewPostgresNotificationRepository(pgdb)
	deviceRepo := repositories.NewPostgresDeviceTokenRepository(pgdb)
	sharingRepo := repositories.NewPostgresSharingRepository(pgdb)

	// --- Realtime ---
	var presence services.PresenceTracker
	if infra.Redis != nil {
		presence = cache.NewPresence(infra.Redis, presenceTTL)
	}
	hub := realtime.NewHub(realtime.Options{
		Redis:             infra.Redis,
		MessagesPerSecond: float64(cfg.WSMessagesPerSecond),
		Log:               log.Named("ws"),
	})

	// --- Services ---
	notifier := services.NewNotifier(notificationRepo, hub, infra.Pusher, infra.Events, log.Named("notify"))
	authService := services.NewAuthService(userRepo, pendingRepo, infra.Mailer, infra.Firebase, cfg.JWTSecret, cfg.PublicBaseURL, log.Named("auth"))
	socialService := services.NewSocialService(userRepo, friendshipRepo, notifier, log.Named("social"))
	userService := services.NewUserService(userRepo, friendshipRepo, infra.Posts, deviceRepo)
	feedService := services.NewFeedService(services.FeedDeps{
		Posts:       infra.Posts,
		Users:       userRepo,
		Friendships: friendshipRepo,
		Likes:       likeRepo,
		Comments:    commentRepo,
		Bookmarks:   bookmarkRepo,
		Store:       infra.Store,
		Notifier:    notifier,
		Events:      infra.Events,
		Log:         log.Named("feed"),
	})
	chatService := services.NewChatService(services.ChatDeps{
		Users:       userRepo,
		Friendships: friendshipRepo,
		Messages:    messageRepo,
		Store:       infra.Store,
		Notifier:    notifier,
		Hub:         hub,
		Presence:    presence,
		Events:      infra.Events,
		Log:         log.Named("chat"),
	})
	hub.SetInboundHandler(func(ctx context.Context, userID uint, in realtime.Inbound) error {
		_, err := chatService.SendText(ctx, userID, in.ReceiverID, in.Message)
		return err
	})
	hub.SetPresence(chatService)

	shareClient := sharing.NewClient(cfg.SharingTimeout, log.Named("sharing"))
	sharingService := services.NewSharingService(services.SharingDeps{
		Configs:       sharingRepo,
		Posts:         infra.Posts,
		Store:         infra.Store,
		Facebook:      sharing.NewFacebook(shareClient, cfg.GraphAPIBaseURL),
		Instagram:     sharing.NewInstagram(shareClient, cfg.GraphAPIBaseURL),
		LinkedIn:      sharing.NewLinkedIn(shareClient, cfg.LinkedInAPIBaseURL, cfg.LinkedInAuthBaseURL, cfg.LinkedInRedirectURL),
		JWTSecret:     cfg.JWTSecret,
		PublicBaseURL: cfg.PublicBaseURL,
		Log:           log.Named("sharing"),
	})

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck(pgdb, infra.Mongo))
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"message": "socio API"})
	})

	if local, ok := infra.Store.(*storage.LocalStore); ok {
		e.Static(cfg.MediaURLPrefix, local.Root())
		log.Info("serving local media", zap.String("prefix", cfg.MediaURLPrefix), zap.String("root", local.Root()))
	}

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	handlers.NewAuthHandler(authService).RegisterAuthRoutes(authGroup)

	sharingHandler := handlers.NewSharingHandler(sharingService)
	public := e.Group("/api/v1")
	sharingHandler.RegisterCallbackRoutes(public)

	// --- Protected routes (require JWT authentication) ---
	jwtAuth := middleware.JWTAuthMiddleware(cfg.JWTSecret)
	api := e.Group("/api/v1", jwtAuth)

	handlers.NewUserHandler(userService, feedService).RegisterProfileRoutes(api)
	handlers.NewFriendshipHandler(socialService).RegisterFriendshipRoutes(api)
	handlers.NewPostHandler(feedService).RegisterPostRoutes(api)
	handlers.NewFeedHandler(feedService).RegisterFeedRoutes(api)
	handlers.NewLikeHandler(feedService).RegisterLikeRoutes(api)
	handlers.NewCommentHandler(feedService).RegisterCommentRoutes(api)
	handlers.NewNotificationHandler(notificationRepo, userRepo).RegisterNotificationRoutes(api)
	handlers.NewChatHandler(chatService).RegisterChatRoutes(api)
	sharingHandler.RegisterSharingRoutes(api)

	e.GET("/ws", handlers.NewWSHandler(hub).Serve, jwtAuth)

	log.Info("all routes configured")
	return &App{Hub: hub}, nil
}
