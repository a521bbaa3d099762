package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/mail-to-chat/internal/config"
	"github.com/shineum/mail-to-chat/internal/replay"
	"github.com/shineum/mail-to-chat/internal/store"
)

type replayFlags struct {
	mbox        string
	concurrency int
	rate        float64
	dryRun      bool
}

func newReplayCmd(configPath *string) *cobra.Command {
	var flags replayFlags

	cmd := &cobra.Command{
		Use:   "replay [file.eml | s3://bucket/key]...",
		Short: "Run stored messages through the pipeline",
		Long: "Replay runs .eml files, S3 objects or the messages of an mbox archive " +
			"through the same pipeline as the Lambda handler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.mbox == "" && len(args) == 0 {
				return fmt.Errorf("nothing to replay: pass files, s3:// URIs or --mbox")
			}

			cfg, err := loadReplayConfig(*configPath, flags.dryRun)
			if err != nil {
				return err
			}
			setupLogger(cfg.Logging.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}

			r := replay.New(a.orchestrator, store.File{}, a.objects, replay.Options{
				Concurrency: flags.concurrency,
				Rate:        flags.rate,
			}, slog.Default())

			var total replay.Summary
			if flags.mbox != "" {
				f, err := os.Open(flags.mbox)
				if err != nil {
					return fmt.Errorf("failed to open mbox: %w", err)
				}
				defer f.Close()

				s, err := r.RunMbox(ctx, f, flags.mbox)
				if err != nil {
					return err
				}
				total = add(total, s)
			}
			if len(args) > 0 {
				s, err := r.Run(ctx, args)
				if err != nil {
					return err
				}
				total = add(total, s)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d: delivered=%d skipped=%d fallback=%d fatal=%d\n",
				total.Total(), total.Delivered, total.Skipped, total.Fallback, total.Fatal)

			if total.Fatal > 0 {
				return fmt.Errorf("%d of %d runs failed", total.Fatal, total.Total())
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.mbox, "mbox", "", "path to an mbox archive to replay")
	f.IntVar(&flags.concurrency, "concurrency", 1, "maximum number of simultaneous runs")
	f.Float64Var(&flags.rate, "rate", 1, "maximum runs started per second (0 disables throttling)")
	f.BoolVar(&flags.dryRun, "dry-run", false, "print notifications to stdout instead of posting them")

	return cmd
}

// loadReplayConfig loads configuration like the Lambda entry point, forcing
// the stdout backend for dry runs.
func loadReplayConfig(path string, dryRun bool) (*config.Config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if dryRun {
		cfg.Chat.Provider = config.ProviderStdout
	}
	return cfg, nil
}

func add(a, b replay.Summary) replay.Summary {
	return replay.Summary{
		Delivered: a.Delivered + b.Delivered,
		Skipped:   a.Skipped + b.Skipped,
		Fallback:  a.Fallback + b.Fallback,
		Fatal:     a.Fatal + b.Fatal,
	}
}
