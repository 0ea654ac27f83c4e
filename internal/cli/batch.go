package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tidwall/match"
	"gopkg.in/yaml.v3"

	"github.com/tedpearson/cerebro/internal/config"
	"github.com/tedpearson/cerebro/internal/influx"
	"github.com/tedpearson/cerebro/internal/logger"
)

var batchFlags struct {
	path      string
	pattern   string
	stateFile string
	dryRun    bool
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze every recording added since the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyBatchFlags(cmd)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		_, err := runBatch(ctx, cfg, batchFlags.dryRun, cmd.OutOrStdout())
		return err
	},
}

func applyBatchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("path") {
		cfg.Batch.Path = batchFlags.path
	}
	if flags.Changed("pattern") {
		cfg.Batch.Pattern = batchFlags.pattern
	}
	if flags.Changed("state-file") {
		cfg.Batch.StateFile = batchFlags.stateFile
	}
}

// State records the newest recording a batch run has analyzed.
type State struct {
	LastData time.Time `yaml:"last_data"`
}

// readState falls back to the epoch when the file is missing or unreadable.
func readState(file string) State {
	def := State{LastData: time.UnixMilli(0)}
	f, err := os.ReadFile(file)
	if err != nil {
		return def
	}
	var state State
	if err := yaml.Unmarshal(f, &state); err != nil {
		logger.Log().Warn().Err(err).Str("file", file).Msg("ignoring unreadable state file")
		return def
	}
	return state
}

func writeState(state State, file string) error {
	b, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(file, b, 0o644); err != nil {
		return fmt.Errorf("failed to write state to %s: %w", file, err)
	}
	return nil
}

type foundFile struct {
	path    string
	modTime time.Time
}

// findFiles walks dir for non-empty, non-hidden files whose name matches
// pattern and that were modified after lastData, oldest first.
func findFiles(dir, pattern string, lastData time.Time) ([]foundFile, error) {
	var found []foundFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !match.Match(strings.ToLower(name), strings.ToLower(pattern)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 || !info.ModTime().After(lastData) {
			return nil
		}
		found = append(found, foundFile{path: path, modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].modTime.Before(found[j].modTime) })
	return found, nil
}

type batchTotals struct {
	found    int
	analyzed int
	failed   int
	points   int
}

// analyzeBatchFile is replaced in tests.
var analyzeBatchFile = analyzeFile

// runBatch analyzes every new file under the configured path. A dry run
// only lists the files. Failures are logged and skipped, and the state is
// held just below the oldest failure so the next run retries it.
func runBatch(ctx context.Context, c config.Config, dryRun bool, out io.Writer) (batchTotals, error) {
	var totals batchTotals
	if c.Batch.Path == "" {
		return totals, fmt.Errorf("no batch path configured")
	}
	state := readState(c.Batch.StateFile)
	files, err := findFiles(c.Batch.Path, c.Batch.Pattern, state.LastData)
	if err != nil {
		return totals, err
	}
	totals.found = len(files)
	log := logger.Log()
	if dryRun {
		for _, f := range files {
			fmt.Fprintln(out, f.path)
		}
		fmt.Fprintf(out, "\n%s new recordings found.\n", humanize.Comma(int64(totals.found)))
		return totals, nil
	}

	var sink *influx.Writer
	if c.Influx.Enabled() {
		w := influx.NewWriter(c.Influx)
		defer w.Close()
		sink = &w
	}
	newLastData := state.LastData
	var oldestFailure time.Time
	for _, f := range files {
		if ctx.Err() != nil {
			log.Warn().Msg("batch interrupted")
			break
		}
		res, err := analyzeBatchFile(ctx, c, f.path, sink)
		if err != nil {
			log.Error().Err(err).Str("file", f.path).Msg("analysis failed")
			totals.failed++
			if oldestFailure.IsZero() || f.modTime.Before(oldestFailure) {
				oldestFailure = f.modTime
			}
			continue
		}
		totals.analyzed++
		totals.points += res.points
		if f.modTime.After(newLastData) {
			newLastData = f.modTime
		}
	}
	if !oldestFailure.IsZero() && !newLastData.Before(oldestFailure) {
		newLastData = oldestFailure.Add(-time.Nanosecond)
	}
	if newLastData.After(state.LastData) {
		state.LastData = newLastData
		if err := writeState(state, c.Batch.StateFile); err != nil {
			return totals, err
		}
	}
	fmt.Fprintf(out, "\nTotal: %s of %s new recordings analyzed (%s failed), %s influx points written.\n",
		humanize.Comma(int64(totals.analyzed)), humanize.Comma(int64(totals.found)),
		humanize.Comma(int64(totals.failed)), humanize.Comma(int64(totals.points)))
	return totals, ctx.Err()
}

func init() {
	f := batchCmd.Flags()
	f.StringVarP(&batchFlags.path, "path", "p", "", "Directory to scan for recordings")
	f.StringVar(&batchFlags.pattern, "pattern", "", "Glob matched against file names, such as *.edf")
	f.StringVar(&batchFlags.stateFile, "state-file", "", "State file")
	f.BoolVar(&batchFlags.dryRun, "dry-run", false, "List new recordings without analyzing them")
	rootCmd.AddCommand(batchCmd)
}
