package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kleio-labs/threadchat/internal/api"
	"github.com/kleio-labs/threadchat/internal/auth"
	"github.com/kleio-labs/threadchat/internal/config"
	"github.com/kleio-labs/threadchat/internal/core"
	"github.com/kleio-labs/threadchat/internal/guest"
	"github.com/kleio-labs/threadchat/internal/store"
	"github.com/kleio-labs/threadchat/internal/syncproxy"
	"github.com/kleio-labs/threadchat/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger := newLogger(cfg.LogMode)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	dbStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, sugar)
	if err != nil {
		sugar.Fatalw("failed to initialize database", "error", err)
	}
	defer dbStore.Close()

	var completer core.Completer
	if cfg.DemoMode() {
		sugar.Warnw("no GEMINI_API_KEY configured, completions run in demo mode")
		completer = core.DemoCompleter{}
	} else {
		gemini, err := core.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.DefaultModel)
		if err != nil {
			sugar.Fatalw("failed to initialize Gemini client", "error", err)
		}
		defer gemini.Close()
		completer = gemini
	}

	var limiter guest.Limiter
	if cfg.RedisAddr != "" {
		redisLimiter := guest.NewRedisLimiter(cfg.RedisAddr, cfg.GuestFreeLimit)
		defer redisLimiter.Close()
		limiter = redisLimiter
	} else {
		sugar.Infow("no REDIS_ADDR configured, guest limiter uses in-process counters")
		limiter = guest.NewMemoryLimiter(cfg.GuestFreeLimit)
	}

	proxy, err := syncproxy.New(cfg.SyncURL, cfg.SyncSourceID, cfg.SyncSecret, sugar)
	if err != nil {
		sugar.Fatalw("failed to initialize sync proxy", "error", err)
	}

	signer := auth.NewSessionSigner(cfg.JWTSecret)
	chatService := core.NewChatService(dbStore, completer, sugar)
	completionService := core.NewCompletionService(dbStore, completer, chatService, sugar)

	apiHandler := api.NewAPIHandler(dbStore, chatService, completionService, proxy, limiter, signer, sugar)
	router := api.NewRouter(apiHandler, web.Handler(), sugar)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: router,
		// No WriteTimeout: completion relays and live shape subscriptions
		// hold the response open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		sugar.Infow("starting server", "addr", srv.Addr, "demo_mode", cfg.DemoMode())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server stopped unexpectedly", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Infow("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Fatalw("server forced to shutdown", "error", err)
	}
	sugar.Infow("server exited gracefully")
}

func newLogger(mode string) *zap.Logger {
	var cfg zap.Config
	switch mode {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	return logger
}
