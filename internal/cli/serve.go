package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shitan-ai/shitan/internal/config"
	"github.com/shitan-ai/shitan/internal/logger"
	"github.com/shitan-ai/shitan/pkg/chat"
	"github.com/shitan-ai/shitan/pkg/gateway"
	"github.com/shitan-ai/shitan/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat web server",
	Long: `Start the web server in the foreground. It serves the chat page,
the conversation API, and the websocket status stream until interrupted.`,
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
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	log.Info().Str("version", version).Msg("Starting 食探AI")

	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()
	repo := session.NewRepository(store)

	sweeper := session.NewSweeper(store, cfg.Session.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	defer sweeper.Stop()

	client := buildChatClient(cfg, log)

	srv, err := gateway.NewServer(gateway.Config{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Sessions:     repo,
		Chat:         client,
		CookieName:   cfg.Session.CookieName,
		SessionTTL:   cfg.Session.TTL(),
		TemplateDir:  cfg.Server.TemplateDir,
		StaticDir:    cfg.Server.StaticDir,
		TickInterval: time.Duration(cfg.Server.TickInterval) * time.Second,
		Logger:       log.Zerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("Received shutdown signal")

	return srv.Stop()
}

func buildStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "sqlite":
		return session.NewSQLiteStore(cfg.Session.Path, cfg.Session.TTL())
	default:
		return session.NewMemoryStore(cfg.Session.TTL()), nil
	}
}

// buildChatClient connects to the upstream. Failure is not fatal: the server
// comes up in degraded mode and conversation management keeps working, which
// matches how the service has always behaved without credentials.
func buildChatClient(cfg *config.Config, log *logger.Logger) *chat.Client {
	if cfg.Upstream.APIKey == "" {
		log.Warn().Msg("No upstream API key configured, running in degraded mode")
		return nil
	}

	client, err := chat.NewClient(chat.Config{
		Provider:       cfg.Upstream.Provider,
		APIKey:         cfg.Upstream.APIKey,
		BaseURL:        cfg.Upstream.BaseURL,
		Model:          cfg.Upstream.Model,
		MaxTokens:      cfg.Upstream.MaxTokens,
		Temperature:    cfg.Upstream.Temperature,
		RequestTimeout: time.Duration(cfg.Upstream.RequestTimeout) * time.Second,
		ProbeTimeout:   time.Duration(cfg.Upstream.ProbeTimeout) * time.Second,
	})
	if err != nil {
		log.Error().Err(err).Msg("Upstream probe failed, running in degraded mode")
		return nil
	}

	log.Info().Str("provider", client.Provider()).Str("model", cfg.Upstream.Model).
		Msg("Upstream connection established")
	return client
}
