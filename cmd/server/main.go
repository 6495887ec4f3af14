package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/hesampakdaman/messaging/internal/cache"
	"github.com/hesampakdaman/messaging/internal/config"
	"github.com/hesampakdaman/messaging/internal/handlers"
	"github.com/hesampakdaman/messaging/internal/handlers/ws"
	"github.com/hesampakdaman/messaging/internal/middleware"
	"github.com/hesampakdaman/messaging/internal/repository"
	"github.com/hesampakdaman/messaging/internal/service"
	"github.com/hesampakdaman/messaging/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	appLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(appLog)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to open store: ", err)
	}
	defer store.Close()

	// Redis is optional; without it every lookup goes to the store.
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled() {
		redisCache = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisCache.Ping(); err != nil {
			log.Printf("WARNING: Redis connection failed: %v. Running without cache.", err)
			_ = redisCache.Close()
			redisCache = nil
		} else {
			log.Println("Redis cache connected successfully")
			defer redisCache.Close()
		}
	}
	messageCache := cache.NewMessageCache(redisCache)

	hub := ws.NewHub(0)
	logs := service.NewLogService(store, service.Options{
		OpTimeout:          cfg.OpTimeout,
		AckRequireExisting: cfg.AckRequireExisting,
		Logger:             appLog,
		Notifier:           hub,
		Cache:              messageCache,
	})

	// S3 is best effort; export returns 503 without it.
	var objects service.ObjectStore
	if s3cfg, err := storage.LoadS3ConfigFromEnv(); err != nil {
		log.Printf("WARNING: S3 export storage not configured: %v", err)
	} else if st, err := storage.NewS3Storage(s3cfg); err != nil {
		log.Printf("WARNING: Failed to initialize S3 storage: %v", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := st.EnsureBucket(ctx, s3cfg.Region); err != nil {
			log.Printf("WARNING: S3 bucket %s unavailable: %v", s3cfg.Bucket, err)
		} else {
			objects = st
			log.Printf("S3 export storage initialized (bucket=%s)", st.Bucket())
		}
		cancel()
	}
	exports := service.NewExportService(logs, objects, appLog)

	app := fiber.New(fiber.Config{
		AppName: "Channel Message Log",
		// payload plus the envelope around it
		BodyLimit: cfg.MaxPayloadBytes + 64*1024,
	})

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Consumer",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := logs.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// everything below /health is origin checked and, with JWT_SECRET, authenticated
	app.Use(middleware.OriginAllowed(cfg.AllowedOrigins), middleware.AuthRequired(cfg.JWTSecret))

	logHandler := handlers.NewLogHandler(logs, exports, cfg.MaxPayloadBytes)
	logHandler.Register(app, limiter.New(limiter.Config{
		Max:        600,
		Expiration: time.Minute,
	}))

	wsHandler := handlers.NewWebSocketHandler(hub, logs, ws.DefaultConnConfig())
	app.Get("/ws/channels/:channel",
		wsHandler.Upgrade,
		websocket.New(wsHandler.HandleWebSocket),
	)

	go func() {
		log.Printf("Server starting on port %s (store=%s)...", cfg.Port, cfg.StoreBackend)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}

func openStore(cfg config.Config) (repository.Store, error) {
	if cfg.StoreBackend == config.BackendMemory {
		log.Println("WARNING: using the in-memory store; messages are lost on restart")
		return repository.NewMemoryStore(), nil
	}
	db, err := repository.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	return repository.NewPostgresStore(db), nil
}

func corsOrigins(allowed string) string {
	if allowed == "" {
		return "*"
	}
	return allowed
}
