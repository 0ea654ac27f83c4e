package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tedpearson/cerebro/internal/cerebro"
	"github.com/tedpearson/cerebro/internal/config"
	"github.com/tedpearson/cerebro/internal/influx"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/writer"
)

var analyzeFlags struct {
	source      string
	outputDir   string
	compression string
	hdf5        bool
	noInflux    bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Preprocess and analyze one recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("source") {
			cfg.Source = analyzeFlags.source
		}
		if flags.Changed("output") {
			cfg.Output.Dir = analyzeFlags.outputDir
		}
		if flags.Changed("compression") {
			cfg.Output.Compression = analyzeFlags.compression
		}
		if flags.Changed("hdf5") {
			cfg.Output.HDF5 = analyzeFlags.hdf5
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var sink *influx.Writer
		if cfg.Influx.Enabled() && !analyzeFlags.noInflux {
			w := influx.NewWriter(cfg.Influx)
			defer w.Close()
			sink = &w
		}
		res, err := analyzeFile(ctx, cfg, args[0], sink)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s", res.output)
		if res.hdf5 != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " and %s", res.hdf5)
		}
		if sink != nil {
			fmt.Fprintf(cmd.OutOrStdout(), ", %s influx points", humanize.Comma(int64(res.points)))
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

// outputPaths returns the JSON and HDF5 result paths for a recording.
// The HDF5 path is empty when HDF5 output is disabled.
func outputPaths(o config.Output, file string) (string, string, error) {
	c, err := writer.ParseCompression(o.Compression)
	if err != nil {
		return "", "", err
	}
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	stem := filepath.Join(o.Dir, base)
	h5 := ""
	if o.HDF5 {
		h5 = stem + ".h5"
	}
	return stem + ".json" + c.Extension(), h5, nil
}

type analyzed struct {
	pipeline *cerebro.Pipeline
	output   string
	hdf5     string
	points   int
}

// analyzeFile runs the full pipeline on file, writes its results and
// exports them to sink when one is given.
func analyzeFile(ctx context.Context, c config.Config, file string, sink *influx.Writer) (analyzed, error) {
	output, h5, err := outputPaths(c.Output, file)
	if err != nil {
		return analyzed{}, err
	}
	if h5 != "" {
		if err := os.MkdirAll(filepath.Dir(h5), 0o755); err != nil {
			return analyzed{}, err
		}
	}
	p, err := cerebro.RunPipeline(ctx, file, cerebro.RunOptions{
		Source:     c.Source,
		Preprocess: c.Preprocess,
		Analyses:   c.Analysis,
		Heart:      c.Heart,
		Output:     output,
		HDF5:       h5,
	})
	if err != nil {
		return analyzed{}, fmt.Errorf("%s: %w", file, err)
	}
	res := analyzed{pipeline: p, output: output, hdf5: h5}
	if sink != nil {
		s := p.Session
		res.points = sink.WriteRecord(influx.Record{
			Subject:     s.Analysis.Subject,
			Source:      s.Analysis.Source,
			Filename:    s.Analysis.Filepath,
			MeasDate:    s.Raw.MeasDate,
			QEEG:        s.Analysis.Result,
			Heart:       s.Analysis.HeartRate,
			Annotations: s.Raw.Annotations,
		})
	}
	logger.Log().Info().Str("file", file).Str("output", output).Msg("analysis complete")
	return res, nil
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.source, "source", "s", "", "Dataset layout of the recording (edf, brainvision, tuh, chbmp, tdbrain)")
	f.StringVarP(&analyzeFlags.outputDir, "output", "o", "", "Directory for results")
	f.StringVar(&analyzeFlags.compression, "compression", "", "Result compression (none, zstd, lz4, snappy)")
	f.BoolVar(&analyzeFlags.hdf5, "hdf5", false, "Also write numeric results as HDF5")
	f.BoolVar(&analyzeFlags.noInflux, "no-influx", false, "Skip influx export even when configured")
	rootCmd.AddCommand(analyzeCmd)
}
