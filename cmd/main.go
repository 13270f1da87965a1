package main

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"todo-service/internal/cache"
	"todo-service/internal/config"
	"todo-service/internal/controller"
	"todo-service/internal/database"
	"todo-service/internal/queue"
	"todo-service/internal/repository"
	"todo-service/internal/routes"
	"todo-service/internal/worker"
	"todo-service/pkg/logger"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	port := pflag.String("port", "", "HTTP port (overrides HTTP_PORT)")
	pflag.Parse()

	loadEnvFile(*envFile)
	if *port != "" {
		_ = os.Setenv("HTTP_PORT", *port)
	}

	if err := run(); err != nil {
		logger.Error(context.Background(), "Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Get()
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBEnsureSchema {
		if err := database.EnsureSchema(ctx, db, cfg.DatabaseDriver); err != nil {
			return err
		}
	}
	repo := repository.New(db, cfg.DatabaseDriver)

	// Optional: an unreachable Redis disables the cache instead of failing startup.
	var listCache controller.ListCache
	redisCache, err := cache.New(ctx, cfg)
	if err != nil {
		logger.Warn(ctx, "Redis unavailable; list cache disabled", "error", err)
	} else if redisCache != nil {
		defer redisCache.Close()
		listCache = redisCache
	}

	var events controller.EventPublisher
	if publisher := queue.NewPublisher(ctx, cfg); publisher != nil {
		queue.EnsureTopic(ctx, cfg)
		logger.Info(ctx, "Publishing todo events", "topic", publisher.Topic())
		defer publisher.Close()
		events = publisher
	}

	tc := controller.NewTodoController(repo, listCache, events)
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           routes.Router(tc),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(ctx, "HTTP server listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if redisCache != nil && events != nil {
		// Consumes change events and retries cache invalidations.
		w := worker.NewFromConfig(cfg, redisCache)
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info(ctx, "Server stopped")
	return err
}

// loadEnvFile reads a .env file and sets env vars (only if not already set).
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		val = unquote(strings.TrimSpace(val))
		if key != "" && os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}
}

func unquote(val string) string {
	if len(val) >= 2 {
		if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
			return val[1 : len(val)-1]
		}
	}
	return val
}
