package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/biotwin/biotwin/internal/config"
	"github.com/biotwin/biotwin/internal/logger"
	"github.com/biotwin/biotwin/internal/metrics"
	"github.com/biotwin/biotwin/internal/server"
	"github.com/biotwin/biotwin/internal/store"
	"github.com/biotwin/biotwin/pkg/agent"
	"github.com/biotwin/biotwin/pkg/calendar"
	"github.com/biotwin/biotwin/pkg/history"
	"github.com/biotwin/biotwin/pkg/llm"
	"github.com/biotwin/biotwin/pkg/scanner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Bio-Twin API server",
	Long: `Start the Bio-Twin API server.
The server exposes the scan, chat, agent, calendar auth, and history
analysis endpoints, and keeps per-user agent sessions alive in memory.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", e)
		}
		return fmt.Errorf("configuration is invalid")
	}

	appLogger, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.GetZerolog()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "biotwin.db"), log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	client, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	ladder := make([]llm.Backend, 0, len(cfg.Gemini.Models))
	for _, model := range cfg.Gemini.Models {
		ladder = append(ladder, client.Backend(model))
	}

	m := metrics.New()

	oauthCfg := calendar.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)

	registry, err := agent.NewRegistry(cfg.Agent.SessionCacheSize, func(userID string) (*agent.Session, error) {
		return agent.NewSession(agent.SessionConfig{
			UserID:       userID,
			Ladder:       ladder,
			Calendar:     calendar.New(userID, st, oauthCfg, log),
			MaxToolTurns: cfg.Agent.MaxToolTurns,
			Logger:       log,
			Metrics:      m,
		})
	}, log, m)
	if err != nil {
		return fmt.Errorf("failed to create session registry: %w", err)
	}

	docScanner, err := scanner.New(client, cfg.Gemini.ScanModels, log, m)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	analyzer, err := history.New(client, st, cfg.Gemini.HistoryModel, log)
	if err != nil {
		return fmt.Errorf("failed to create history analyzer: %w", err)
	}

	srv, err := server.New(server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Sessions: func(userID string) (server.Agent, error) {
			return registry.GetOrCreate(userID)
		},
		Scanner:  docScanner,
		Analyzer: analyzer,
		Store:    st,
		OAuth:    oauthCfg,
		Authorized: func(ctx context.Context, userID string) bool {
			return calendar.New(userID, st, oauthCfg, log).IsAuthorized(ctx)
		},
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		Metrics:        m,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info().Str("version", version).Msg("Bio-Twin is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	return srv.Stop()
}
