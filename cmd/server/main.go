package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/certificate-mailer/internal/api"
	"github.com/ignite/certificate-mailer/internal/certificate"
	"github.com/ignite/certificate-mailer/internal/config"
	"github.com/ignite/certificate-mailer/internal/delivery"
	"github.com/ignite/certificate-mailer/internal/dispatch"
	"github.com/ignite/certificate-mailer/internal/metrics"
	"github.com/ignite/certificate-mailer/internal/pkg/distlock"
	"github.com/ignite/certificate-mailer/internal/pkg/httpretry"
	"github.com/ignite/certificate-mailer/internal/pkg/logger"
	"github.com/ignite/certificate-mailer/internal/repository/postgres"
	"github.com/ignite/certificate-mailer/internal/transport"
)

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	dbURL := cfg.URL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
	}
	logger.Info("connecting to database", "host", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		logger.Info("Redis not configured, using PG advisory locks for bulk sends")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis connection failed, falling back to PG advisory locks", "error", err)
		client.Close()
		return nil
	}
	logger.Info("Redis connected, distributed locking enabled")
	return client
}

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := openRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	participants := postgres.NewParticipantRepo(db)
	settings := postgres.NewSettingsRepo(db)
	emailLogs := postgres.NewEmailLogRepo(db)

	collector := metrics.New()

	var renderer dispatch.Renderer = certificate.NewRenderer()
	if cfg.Archive.Enabled() {
		archive, err := certificate.NewS3Archive(ctx, renderer, cfg.Archive)
		if err != nil {
			logger.Warn("certificate archive disabled", "error", err)
		} else {
			renderer = archive
		}
	}

	accounts := transport.NewEtherealClient(cfg.Mail.TestAccountAPIURL,
		httpretry.NewRetryClient(&http.Client{Timeout: 20 * time.Second}, 3))
	resolver := transport.NewResolver(cfg.Mail, cfg.SES,
		transport.WithAccountProvider(accounts),
		transport.WithFallbackHook(collector.TransportFellBack),
	)
	defer resolver.Close()
	logger.Info("mail transport", "mode", string(resolver.Mode()),
		"concurrency", cfg.Mail.Concurrency, "timeout", cfg.Mail.Timeout())

	dispatcher := dispatch.New(renderer, delivery.NewRecorder(emailLogs, participants),
		dispatch.WithDefaultFrom(cfg.Mail.From),
		dispatch.WithObserver(collector),
	)

	lockTTL := cfg.Redis.LockTTL()
	handlers := api.NewHandlers(api.Deps{
		Participants: participants,
		Settings:     settings,
		EmailLogs:    emailLogs,
		Transport:    resolver,
		Dispatcher:   dispatcher,
		Renderer:     renderer,
		Mail:         cfg.Mail,
		NewLock: func() distlock.DistLock {
			return distlock.NewLock(redisClient, db, api.SendLockKey, lockTTL)
		},
		LockTTL:      lockTTL,
		Metrics:      collector,
		ExposeErrors: logger.ParseLevel(cfg.Log.Level) == logger.DEBUG,
	})
	server := api.NewServer(cfg.Server, handlers)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Let in-flight delivery records land before the pool closes.
	dispatcher.Wait()
	logger.Info("server stopped")
}
