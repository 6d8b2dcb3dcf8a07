package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/cache"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/config"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/handlers"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/handlers/ws"
	applog "github.com/Scl-Ywr/confession-wall-sub002/internal/logger"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/middleware"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/repository"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	zl, err := applog.New(cfg.Logger)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := repository.InitDB(cfg.Database)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	store := repository.NewStore(db)

	// Initialize Redis cache (optional for a single instance)
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisCache.Ping(ctx); err != nil {
			zl.Warn("redis connection failed, running without cache", zap.Error(err))
			redisCache = nil
		} else {
			zl.Info("redis cache connected", zap.String("addr", cfg.Redis.Addr))
		}
	}
	if cfg.Fanout.Relay == "redis" && redisCache == nil {
		zl.Fatal("FANOUT_RELAY=redis requires a reachable redis")
	}

	busOpts := fanout.Options{
		SubscriberBuffer: cfg.Fanout.SubscriberBuffer,
		ReorderWindow:    cfg.Fanout.ReorderWindow,
		Logger:           zl.Named("fanout"),
	}
	if cfg.Fanout.Relay == "redis" {
		busOpts.Sequencer = fanout.NewRedisSequencer(redisCache)
		busOpts.Relay = fanout.NewRedisRelay(redisCache.Client(), zl.Named("relay"))
	}
	bus := fanout.NewBus(busOpts)
	go func() {
		if err := bus.Run(ctx); err != nil && ctx.Err() == nil {
			zl.Error("fan-out relay stopped", zap.Error(err))
		}
	}()

	unreadCache := cache.NewUnreadCache(redisCache)
	presenceCache := cache.NewPresenceCache(redisCache, cfg.Presence.Window)

	// Initialize services
	friendshipService := service.NewFriendshipService(store, unreadCache, bus, zl.Named("friendship"))
	ledgerService := service.NewLedgerService(store, unreadCache, bus, zl.Named("ledger"))
	presenceService := service.NewPresenceService(store, presenceCache, cfg.Presence.Window, bus, zl.Named("presence"))
	messageService := service.NewMessageService(store, unreadCache, service.MessageConfig{
		MaxBodyLength: cfg.Messaging.MaxBodyLength,
		SendTimeout:   cfg.Messaging.SendTimeout,
	}, bus, zl.Named("messages"))
	groupService := service.NewGroupService(store, unreadCache, bus, zl.Named("groups"))
	syncService := service.NewSyncService(store, friendshipService, ledgerService, presenceService, messageService, groupService)

	go presenceService.RunSweeper(ctx, cfg.Presence.SweepInterval)

	hub := ws.NewHub(bus, zl.Named("ws"))
	defer hub.Close()

	app := fiber.New(fiber.Config{
		AppName:   "Confession Wall Realtime",
		BodyLimit: cfg.Server.BodyLimit,
	})

	// Middleware
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.CSRFHeader,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: cfg.Server.AllowedOrigins != "" && cfg.Server.AllowedOrigins != "*",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		published, dropped := bus.Stats()
		return c.JSON(fiber.Map{
			"status":    "ok",
			"sessions":  hub.Count(),
			"published": published,
			"dropped":   dropped,
		})
	})

	handlers.Register(app, handlers.Handlers{
		Friendship:   handlers.NewFriendshipHandler(friendshipService),
		Message:      handlers.NewMessageHandler(messageService),
		Conversation: handlers.NewConversationHandler(ledgerService, messageService),
		Presence:     handlers.NewPresenceHandler(presenceService, syncService),
		Group:        handlers.NewGroupHandler(groupService),
		Sync:         handlers.NewSyncHandler(syncService),
		WebSocket:    handlers.NewWebSocketHandler(hub, syncService, presenceService, zl.Named("ws")),
	}, handlers.RouteConfig{
		JWTSecret:      cfg.JWT.Secret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		CSRFMode:       cfg.Server.CSRFMode,
		SendsPerMinute: 120,
	})

	go func() {
		<-ctx.Done()
		zl.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zl.Warn("shutdown", zap.Error(err))
		}
	}()

	zl.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("relay", cfg.Fanout.Relay))
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		zl.Fatal("failed to start server", zap.Error(err))
	}

	if redisCache != nil {
		_ = redisCache.Close()
	}
}
