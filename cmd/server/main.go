package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"roomchat/internal/chat"
	"roomchat/internal/config"
	"roomchat/internal/db"
	"roomchat/internal/logger"
	"roomchat/internal/metrics"
	myMiddleware "roomchat/internal/middleware"
	"roomchat/internal/presence"
	"roomchat/internal/rooms"
	"roomchat/internal/sqlitestore"
	"roomchat/internal/user"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// stores is the persistence backend picked by STORE_DRIVER.
type stores struct {
	messages chat.MessageStore
	users    user.Store
	close    func() error
}

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", "", "http service address (overrides SERVER_ADDR)")
	flag.Parse()

	log := logger.SetupDefault(os.Stdout, os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		fatal(log, "❌ Invalid configuration", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	// 2. Storage (Platform Layer)
	st, err := openStores(cfg, log)
	if err != nil {
		fatal(log, "❌ Failed to open store", err)
	}

	// 3. Redis user cache (optional)
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			fatal(log, "❌ Failed to connect to Redis", err)
		}
		log.Info("✅ Connected to Redis", slog.String("addr", cfg.RedisAddr))
	}

	// 4. User Feature
	userService := user.NewService(st.users, cfg.JWTSecret)
	userHandler := user.NewHandler(userService, log)
	var directory user.Directory = userService
	if redisClient != nil {
		directory = user.NewCachedDirectory(userService, redisClient, cfg.UserCacheTTL, log)
	}

	// 5. Chat Feature
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(reg)

	policy := rooms.NewPolicy(cfg.Rooms)
	hub := chat.NewHub(recorder, log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	router := chat.NewRouter(chat.RouterDeps{
		Registry:     presence.NewRegistry(),
		Policy:       policy,
		Store:        st.messages,
		Users:        directory,
		Transport:    hub,
		Metrics:      recorder,
		Logger:       log,
		StoreTimeout: cfg.StoreTimeout,
	})
	chatHandler := chat.NewHandler(hub, router, st.messages, policy, chat.HandlerConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxMessageSize: cfg.MaxMessageSize,
		RatePerSecond:  cfg.RatePerSecond,
		RateBurst:      cfg.RateBurst,
	}, log)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", chatHandler.Health)
	r.Handle("/metrics", metrics.Handler(reg))

	r.Route("/api", func(r chi.Router) {
		r.Post("/signup", userHandler.Signup)
		r.Post("/login", userHandler.Login)
		r.Get("/users", userHandler.ListUsers)
		r.Get("/users/online", chatHandler.ListOnlineUsers)
		r.Get("/rooms", chatHandler.ListRooms)
		r.Get("/rooms/{room}/messages", chatHandler.GetRoomMessages)
	})

	// WebSocket (Real-time). A valid token pins the connection's identity.
	r.With(authMiddleware.Optional).Get("/ws", chatHandler.ServeWs)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Server starting", slog.String("addr", cfg.Addr), slog.Any("rooms", policy.Rooms()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "❌ Server failed", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				log.Info("Graceful shutdown initiated...")
				err := srv.Shutdown(ctx)

				// Hijacked WebSocket connections are closed by the hub.
				stopHub()
				select {
				case <-hub.Done():
				case <-ctx.Done():
					err = errors.Join(err, ctx.Err())
				}

				if redisClient != nil {
					err = errors.Join(err, redisClient.Close())
				}
				return errors.Join(err, st.close())
			},
		},
	)

	exitCode := <-wait
	log.Info("Server exited", slog.Int("code", exitCode))
	os.Exit(exitCode)
}

func openStores(cfg *config.Config, log *slog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("✅ Opened SQLite store", slog.String("path", cfg.SQLitePath))
		return &stores{messages: s, users: s, close: s.Close}, nil

	default:
		database, err := db.NewDatabase(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		log.Info("✅ Connected to PostgreSQL")

		if err := db.Migrate(cfg.DatabaseDSN); err != nil {
			database.Close()
			return nil, err
		}
		log.Info("✅ Database Schema Initialized")

		return &stores{
			messages: chat.NewRepository(database.Conn),
			users:    user.NewRepository(database.Conn),
			close:    database.Close,
		}, nil
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
