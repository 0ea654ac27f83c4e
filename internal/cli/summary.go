package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/tedpearson/cerebro/internal/params"
	"github.com/tedpearson/cerebro/internal/writer"
)

var summaryFlags struct {
	query string
	raw   bool
	color bool
}

var summaryCmd = &cobra.Command{
	Use:   "summary <results>",
	Short: "Digest a saved analysis result",
	Long: `Prints a short digest of a result file written by analyze or batch.
Compressed results are read according to their extension.

Examples:
  cerebro summary results/subject.json.zst
  cerebro summary --query heart_rate results/subject.json
  cerebro summary --raw --color results/subject.json.lz4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := writer.ReadFile(args[0])
		if err != nil {
			return err
		}
		if !gjson.ValidBytes(data) {
			return fmt.Errorf("%s does not contain a valid JSON document", args[0])
		}
		out := cmd.OutOrStdout()
		switch {
		case summaryFlags.query != "":
			res := gjson.GetBytes(data, summaryFlags.query)
			if !res.Exists() {
				return fmt.Errorf("no value at %q", summaryFlags.query)
			}
			writeJSON(out, []byte(res.Raw), summaryFlags.color)
		case summaryFlags.raw:
			writeJSON(out, data, summaryFlags.color)
		default:
			summarize(out, data)
		}
		return nil
	},
}

func writeJSON(out io.Writer, data []byte, color bool) {
	b := pretty.Pretty(data)
	if color {
		b = pretty.Color(b, nil)
	}
	_, _ = out.Write(b)
}

// summarize prints provenance and headline metrics of a result document.
// Sections absent from the document are skipped.
func summarize(out io.Writer, data []byte) {
	doc := gjson.ParseBytes(data)
	line := func(label, format string, a ...any) {
		fmt.Fprintf(out, "%-28s"+format+"\n", append([]any{label + ":"}, a...)...)
	}

	line("File", "%s (%s)", doc.Get("filepath").String(), doc.Get("source").String())
	if s := doc.Get("subject"); s.Exists() {
		line("Subject", "%s", s.String())
	}
	line("Measured", "%s", doc.Get("measuring_date").String())
	line("Processed", "%s by version %s", doc.Get("processed_date").String(), doc.Get("version").String())
	line("Sampling rate", "%g Hz", doc.Get("sampling_rate").Float())
	for _, flag := range []string{"powerline_noise_detected", "ecg_noise_detected"} {
		if v := doc.Get(flag); v.Exists() {
			line(strings.ReplaceAll(flag, "_", " "), "%t", v.Bool())
		}
	}

	if rel := doc.Get("relative_power"); rel.Exists() {
		fmt.Fprintln(out, "\nMean relative power (%):")
		for _, b := range params.SpectrumBands {
			if v := meanOf(rel.Get(b.Name)); v.n > 0 {
				line("  "+b.Name, "%6.2f over %d channels", v.mean(), v.n)
			}
		}
		if fg := doc.Get("frontal_generator"); fg.Exists() {
			line("  frontal/posterior alpha", "%.3f (frontal generator: %t)",
				doc.Get("frontal_posterior_relative_power_ratio").Float(), fg.Bool())
		}
		line("  low voltage", "%t (max %.1f uV)", doc.Get("low_voltage").Bool(), doc.Get("max_amp_microvolts").Float())
	}
	if c := doc.Get("median_frontal_coherence"); c.Exists() {
		line("Median frontal coherence", "%.3f", c.Float())
	}
	if g := doc.Get("graph_measures.degree"); g.Exists() {
		hub, degree := "", -1.0
		g.ForEach(func(k, v gjson.Result) bool {
			if v.Float() > degree {
				hub, degree = k.String(), v.Float()
			}
			return true
		})
		line("Coherence hub", "%s (degree %.2f)", hub, degree)
	}
	if b := doc.Get("bursts"); b.Exists() {
		total := doc.Get("bursts.#.n_bursts")
		var n int64
		for _, v := range total.Array() {
			n += v.Int()
		}
		frac := meanOf(doc.Get("bursts.#.burst_fraction"))
		line("Alpha bursts", "%s over %d channels, mean fraction %.3f", humanize.Comma(n), frac.n, frac.mean())
	}
	if c := doc.Get("complexity"); c.Exists() {
		se := meanOf(doc.Get("complexity.#.sample_entropy"))
		pe := meanOf(doc.Get("complexity.#.permutation_entropy"))
		line("Complexity", "sample entropy %.3f, permutation entropy %.3f", se.mean(), pe.mean())
	}
	if sc := doc.Get("spectral_connectivity.bands"); sc.Exists() {
		var bands []string
		sc.ForEach(func(k, _ gjson.Result) bool {
			bands = append(bands, k.String())
			return true
		})
		sort.Strings(bands)
		line("Spectral connectivity", "%s", strings.Join(bands, ", "))
	}
	if te := doc.Get("transfer_entropy"); te.Exists() {
		line("Transfer entropy pairs", "%s", humanize.Comma(te.Get("#").Int()))
	}
	if h := doc.Get("heart_rate"); h.Exists() {
		line("Heart rate", "%.1f bpm from %s (RMSSD %.1f ms, LF/HF %.2f)",
			h.Get("heart_rate_bpm").Float(), h.Get("channel").String(),
			h.Get("rmssd_ms").Float(), h.Get("lf_hf_ratio").Float())
	}
}

type average struct {
	sum float64
	n   int
}

func (a average) mean() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}

// meanOf averages the numbers in an object or array result.
func meanOf(r gjson.Result) average {
	var a average
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.Number {
			a.sum += v.Float()
			a.n++
		}
		return true
	})
	return a
}

func init() {
	f := summaryCmd.Flags()
	f.StringVarP(&summaryFlags.query, "query", "q", "", "Print the value at a gjson path instead of the digest")
	f.BoolVar(&summaryFlags.raw, "raw", false, "Print the whole document")
	f.BoolVar(&summaryFlags.color, "color", false, "Colorize JSON output")
	rootCmd.AddCommand(summaryCmd)
}
