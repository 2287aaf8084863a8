package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bombsimon/tweetrelay/internal/core/config"
	"github.com/bombsimon/tweetrelay/internal/core/logging"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file and print the effective settings",
	Run:   runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()
	logging.Init(slog.LevelInfo)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config %s is valid\n", cfgPath)
	fmt.Fprintf(out, "  follow:       @%s\n", cfg.Source.Follow)
	fmt.Fprintf(out, "  destination:  %s (channel %s)\n", cfg.Destination.Kind, cfg.Destination.ChannelID)
	fmt.Fprintf(out, "  delivery:     %d attempts, %s..%s backoff, %d workers\n",
		cfg.Delivery.MaxAttempts, cfg.Delivery.InitialDelay, cfg.Delivery.MaxDelay, cfg.Delivery.Workers)
	fmt.Fprintf(out, "  reconnect:    %s..%s backoff, heartbeat %s\n",
		cfg.Stream.BackoffFloor, cfg.Stream.BackoffCeiling, cfg.Stream.HeartbeatTimeout)
	fmt.Fprintf(out, "  embed:        %v\n", cfg.Format.Embed)
	fmt.Fprintf(out, "  redis lock:   %v\n", cfg.Redis.URL != "")
}
