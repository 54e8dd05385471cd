package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"directchat/internal/chat"
	"directchat/internal/config"
	"directchat/internal/db"
	myMiddleware "directchat/internal/middleware"
	"directchat/internal/respond"
	"directchat/internal/token"
	"directchat/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Config & Flags
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config.Load: %v", err)
	}

	addr := flag.String("addr", cfg.Addr, "http service address")
	flag.Parse()

	logger, err := newLogger(cfg.Development)
	if err != nil {
		log.Fatalf("zap logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// 2. Connect to Database
	database, err := db.NewDatabase(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		sugar.Fatalf("Failed to connect to DB: %v", err)
	}
	sugar.Infof("Connected to %s", database.Driver)

	if err := database.AutoMigrate(); err != nil {
		sugar.Fatalf("Migration failed: %v", err)
	}
	sugar.Info("Database schema initialized")

	// 3. Credential store, optionally behind Redis
	var users user.Store = user.NewRepository(database)
	var redisClient *redis.Client
	if cfg.CacheEnabled() {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			sugar.Fatalf("Failed to connect to Redis: %v", err)
		}
		users = user.NewCache(users, redisClient, cfg.UserCacheTTL, sugar.Named("cache"))
		sugar.Infof("User cache enabled on %s", cfg.RedisAddr)
	}

	// 4. User feature
	tokens := token.NewService(cfg.JWTSecret, token.WithTTL(cfg.TokenTTL))
	userService := user.NewService(users, tokens, sugar.Named("user"), user.WithBcryptCost(cfg.BcryptCost))
	userHandler := user.NewHandler(userService, sugar.Named("user"))
	authMiddleware := myMiddleware.NewAuthMiddleware(userService, sugar.Named("auth"))

	// 5. Chat feature
	chatRepo := chat.NewRepository(database)
	hub := chat.NewHub(sugar.Named("hub"))
	wsRouter := chat.NewRouter(hub, tokens, users, chatRepo, sugar.Named("ws"),
		chat.WithAllowedOrigins(cfg.AllowedOrigins))
	chatHandler := chat.NewHandler(users, chatRepo, sugar.Named("chat"))

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(myMiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(r.Context()); err != nil {
			respond.Error(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(myMiddleware.EnforceJSON).Post("/signup", userHandler.Signup)
		r.With(myMiddleware.EnforceJSON).Post("/signin", userHandler.Signin)
		r.With(authMiddleware.Handle).Get("/user", userHandler.Profile)
	})

	// The websocket handshake authenticates itself so it can answer with a bare 401.
	r.Get("/ws", wsRouter.ServeWs)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/conversations/{username}", chatHandler.GetConversation)
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		sugar.Info("Shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			sugar.Errorf("srv.Shutdown: %v", err)
		}
		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Close()
		close(idleConnsClosed)
	}()

	sugar.Infof("Server starting on %s", *addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		sugar.Fatalf("srv.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			sugar.Warnf("Closing Redis: %v", err)
		}
	}
	if err := database.Close(); err != nil {
		sugar.Warnf("Closing database: %v", err)
	}
	sugar.Info("Server stopped")
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
