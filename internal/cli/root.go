package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bombsimon/tweetrelay/internal/control"
	"github.com/bombsimon/tweetrelay/internal/core/config"
	"github.com/bombsimon/tweetrelay/internal/core/logging"
)

var (
	cfgPath string
	isDebug bool
	isTrace bool
)

var rootCmd = &cobra.Command{
	Use:   "tweetrelay",
	Short: "Relay one account's activity to a chat channel",
	Long: `tweetrelay follows a single account on the activity stream and posts its
posts, replies, quotes and reposts to a Discord or Mattermost channel.`,
	Run: runRelay,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&isTrace, "trace", false, "enable trace logging (every item and delivery)")
}

// logLevel picks the level from flags, falling back to the config value.
func logLevel(cfg *config.AppConfig) slog.Level {
	switch {
	case isTrace:
		return logging.LevelTrace
	case isDebug:
		return slog.LevelDebug
	default:
		return logging.ParseLevel(cfg.Logging.Level)
	}
}

func runRelay(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Init(slog.LevelInfo)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	logging.Init(logLevel(cfg))

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	app, err := control.NewRelay(cfg)
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		slog.Error("Relay stopped with error", "error", err)
		os.Exit(1)
	}
}
