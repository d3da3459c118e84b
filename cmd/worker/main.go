package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/yourorg/opsec-worker/internal/api"
	"github.com/yourorg/opsec-worker/internal/browser"
	"github.com/yourorg/opsec-worker/internal/config"
	"github.com/yourorg/opsec-worker/internal/db"
	"github.com/yourorg/opsec-worker/internal/platform"
	s3c "github.com/yourorg/opsec-worker/internal/s3"
	"github.com/yourorg/opsec-worker/internal/worker"
)

func main() {
	// Load environment variables from .env files if present. This helps local dev.
	// Try current directory and one level up (in case run from cmd/worker).
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		log.Fatal("db ping", zap.Error(err))
	}
	if err := store.EnsureSchema(ctx); err != nil {
		if isInsufficientPrivilege(err) {
			log.Warn("ensure schema skipped due insufficient privilege", zap.Error(err))
		} else {
			log.Fatal("ensure schema", zap.Error(err))
		}
	}

	var archive worker.Archiver
	if cfg.ArchiveEnabled() {
		s3, err := s3c.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL)
		if err != nil {
			log.Fatal("s3 client", zap.Error(err))
		}
		archive = s3
	} else {
		log.Info("report archive disabled (S3_ENDPOINT or REPORTS_BUCKET unset)")
	}

	if cfg.HyperbrowserAPIKey == "" {
		log.Warn("HYPERBROWSER_API_KEY is not set, every platform scan will fail")
	}
	client := browser.NewClient(browser.ClientOptions{
		BaseURL:      cfg.HyperbrowserBaseURL,
		APIKey:       cfg.HyperbrowserAPIKey,
		PollInterval: cfg.AgentPollInterval,
		RateLimit:    cfg.AgentRateLimit,
	})
	sessions := browser.NewSessionManager(client, cfg.UserAgent, log.Named("sessions"))
	scanners := platform.Default(platform.Deps{
		Sessions: sessions,
		Agent:    browser.NewAgentRunner(client, log.Named("agent")),
		Log:      log.Named("scanner"),
	}, cfg)

	r := worker.NewRunner(cfg, store, scanners, sessions, archive, log.Named("orchestrator"))

	// Scans left scanning by a previous process cannot be resumed.
	r.RecoverStaleScans(ctx)

	if addr := cfg.HTTPAddr; addr != "" {
		handler := api.NewServer(api.Config{
			Scans:        store,
			Orchestrator: r,
			Health:       store,
			AuthToken:    cfg.APIAuthToken,
			Logger:       log.Named("api"),
			CORSOrigins:  cfg.APICORSOrigins,
			RateLimit:    cfg.APIRateLimit,
			RateBurst:    cfg.APIRateBurst,
		})
		srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			shctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shctx)
		}()
		go func() {
			log.Info("api listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("api server", zap.Error(err))
				cancel()
			}
		}()
	}

	log.Info("worker starting",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("queue", cfg.QueueSize),
		zap.Bool("archive", archive != nil))
	if err := r.RunForever(ctx); err != nil {
		log.Fatal("run", zap.Error(err))
	}
	log.Info("worker stopped")
}

func isInsufficientPrivilege(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42501"
}
