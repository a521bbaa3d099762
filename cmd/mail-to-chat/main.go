// Package main is the entry point for the mail-to-chat notifier. Without a
// sub-command it runs as an AWS Lambda handler for S3 object-created events.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/shineum/mail-to-chat/internal/config"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "mail-to-chat",
		Short:        "Route inbound email stored in S3 to chat channels",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.Logging.Level)

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			slog.Info("starting lambda handler",
				"provider", a.poster.Name(),
				"domain", cfg.Routing.Domain,
				"error_channel", cfg.Routing.ErrorChannel,
				"sentry_enabled", cfg.SentryEnabled(),
			)

			h := &handler{runner: a.orchestrator, reporter: a.reporter}
			lambda.Start(h.Handle)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")
	rootCmd.AddCommand(newReplayCmd(&configPath))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given, then validates it.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
