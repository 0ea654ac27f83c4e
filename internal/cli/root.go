// Package cli implements the cerebro command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tedpearson/cerebro/internal/config"
	"github.com/tedpearson/cerebro/internal/logger"
)

var (
	configFile string
	logLevel   string
	logFormat  string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cerebro",
	Short: "EEG preprocessing and quantitative analysis",
	Long: `cerebro loads EEG recordings (EDF, BrainVision and dataset specific
layouts), cleans them and computes QEEG, burst, complexity, connectivity
and heart rate metrics.

Examples:
  cerebro analyze --source edf subject.edf     # Analyze one recording
  cerebro batch --path /data/eeg --dry-run     # Find new recordings
  cerebro watch --path "/Volumes/EEG"          # Analyze whenever media appears
  cerebro summary results/subject.json.zst     # Digest a saved result`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		return logger.Configure(cfg.LogLevel, cfg.LogFormat)
	},
}

// Execute runs the command line and exits non-zero on failure.
func Execute(version, goVersion, buildDate string) {
	rootCmd.Version = fmt.Sprintf("%s built on %s with %s", version, buildDate, goVersion)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", config.DefaultFile, "Config file")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "console", "Log format (console or json)")
}
