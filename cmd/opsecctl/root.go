package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourorg/opsec-worker/internal/browser"
	"github.com/yourorg/opsec-worker/internal/config"
	"github.com/yourorg/opsec-worker/internal/db"
	"github.com/yourorg/opsec-worker/internal/platform"
	s3c "github.com/yourorg/opsec-worker/internal/s3"
	"github.com/yourorg/opsec-worker/internal/worker"
)

var (
	cfg     config.Config
	store   *db.Store
	logger  *zap.Logger
	verbose bool
	owner   string
	output  string
)

var rootCmd = &cobra.Command{
	Use:           "opsecctl",
	Short:         "Run and manage OPSEC exposure scans",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env.local")
		_ = godotenv.Load(".env")

		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction(zap.IncreaseLevel(zap.WarnLevel))
		}
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if cfg, err = config.Load(); err != nil {
			return err
		}
		if store, err = db.Open(cmd.Context(), cfg.DatabaseURL); err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		if err := store.EnsureSchema(cmd.Context()); err != nil {
			logger.Warn("ensure schema", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log scan progress")
	rootCmd.PersistentFlags().StringVar(&owner, "owner", "", "owner id scans are created and listed under")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")

	rootCmd.AddCommand(scanCmd, showCmd, listCmd, forceCompleteCmd, recoverCmd, statsCmd)
}

// newRunner wires an orchestrator the same way the worker does.
func newRunner() (*worker.Runner, error) {
	client := browser.NewClient(browser.ClientOptions{
		BaseURL:      cfg.HyperbrowserBaseURL,
		APIKey:       cfg.HyperbrowserAPIKey,
		PollInterval: cfg.AgentPollInterval,
		RateLimit:    cfg.AgentRateLimit,
	})
	sessions := browser.NewSessionManager(client, cfg.UserAgent, logger)
	scanners := platform.Default(platform.Deps{
		Sessions: sessions,
		Agent:    browser.NewAgentRunner(client, logger),
		Log:      logger,
	}, cfg)

	var archive worker.Archiver
	if cfg.ArchiveEnabled() {
		s3, err := s3c.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		archive = s3
	}
	return worker.NewRunner(cfg, store, scanners, sessions, archive, logger), nil
}
