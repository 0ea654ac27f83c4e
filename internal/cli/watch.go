package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tedpearson/cerebro/internal/logger"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run batch each time the batch path appears, such as when media is inserted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyBatchFlags(cmd)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		runWhenMediaInserted(ctx, cfg.Batch.Path, watchInterval, func(ctx context.Context) {
			if _, err := runBatch(ctx, cfg, false, cmd.OutOrStdout()); err != nil {
				logger.Log().Error().Err(err).Msg("batch failed")
			}
		})
		return nil
	},
}

// runWhenMediaInserted calls f when the directory path becomes available.
// If it becomes unavailable and then available again, f is called each time.
func runWhenMediaInserted(ctx context.Context, path string, interval time.Duration, f func(context.Context)) {
	log := logger.Log()
	found := false
	log.Info().Str("path", path).Msg("watching media path")
	for {
		info, err := os.Stat(path)
		if found {
			if err != nil {
				found = false
				log.Info().Str("path", path).Msg("media removed")
			}
		} else if err == nil && info.IsDir() {
			found = true
			log.Info().Str("path", path).Msg("media inserted")
			f(ctx)
		}
		select {
		case <-ctx.Done():
			log.Info().Str("path", path).Msg("stopped watching")
			return
		case <-time.After(interval):
		}
	}
}

func init() {
	f := watchCmd.Flags()
	f.StringVarP(&batchFlags.path, "path", "p", "", "Directory to watch")
	f.StringVar(&batchFlags.pattern, "pattern", "", "Glob matched against file names, such as *.edf")
	f.StringVar(&batchFlags.stateFile, "state-file", "", "State file")
	f.DurationVar(&watchInterval, "interval", 5*time.Second, "How often to check for the path")
	rootCmd.AddCommand(watchCmd)
}
