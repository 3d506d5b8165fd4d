package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/susu3304/warikan/internal/api"
	"github.com/susu3304/warikan/internal/bot"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/logger"
	"github.com/susu3304/warikan/internal/memstore"
	"github.com/susu3304/warikan/internal/warikan"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.AppEnv, cfg.LogLevel, cfg.LogDir)

	ctx := context.Background()

	var store warikan.Store
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		if err := database.RunMigrations(ctx); err != nil {
			logger.Log.Fatalf("Failed to run migrations: %v", err)
		}
		store = database
	} else {
		logger.Log.Warn("DATABASE_URL is not set; data is kept in memory only")
		store = memstore.New()
	}

	svc := warikan.NewService(store, cfg.Currencies)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
	}

	// Discord front-end is optional
	if cfg.DiscordToken != "" {
		discordBot, err := bot.New(cfg.DiscordToken, svc)
		if err != nil {
			logger.Log.Fatalf("Failed to create discord bot: %v", err)
		}
		if err := discordBot.Start(); err != nil {
			logger.Log.Fatalf("Failed to start discord bot: %v", err)
		}
		defer discordBot.Stop()
	}

	apiServer := api.New(cfg, svc, rdb)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Warn("API server shutdown")
	}
}
