// Package params holds the constants shared across the toolkit: channel
// layouts, frequency bands and decision thresholds.
package params

import "math"

// Channels1020 lists the 19 channels of the international 10-20 system, in the
// order every analysis reports them.
var Channels1020 = []string{
	"Fp1", "Fp2", "F3", "F4", "C3", "C4", "P3", "P4", "O1", "O2",
	"F7", "F8", "T3", "T4", "T5", "T6", "Fz", "Cz", "Pz",
}

// Convert1010To1020 maps 10-10 names onto their 10-20 equivalents.
var Convert1010To1020 = map[string]string{
	"Fp1": "Fp1",
	"Fp2": "Fp2",
	"F3":  "F3",
	"F4":  "F4",
	"C3":  "C3",
	"C4":  "C4",
	"P3":  "P3",
	"P4":  "P4",
	"O1":  "O1",
	"O2":  "O2",
	"F7":  "F7",
	"F8":  "F8",
	"T7":  "T3",
	"T8":  "T4",
	"P7":  "T5",
	"P8":  "T6",
	"Fz":  "Fz",
	"Cz":  "Cz",
	"Pz":  "Pz",
}

// TDBrainChannelMapping renames the TDBRAIN cap layout (10-10 names, upper case
// midline electrodes in some exports) to 10-20.
var TDBrainChannelMapping = map[string]string{
	"FP1": "Fp1",
	"FP2": "Fp2",
	"FZ":  "Fz",
	"CZ":  "Cz",
	"PZ":  "Pz",
	"T7":  "T3",
	"T8":  "T4",
	"P7":  "T5",
	"P8":  "T6",
}

type Band struct {
	Name string  `json:"name"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

var (
	DeltaBand    = Band{"delta", 0.5, 4}
	ThetaBand    = Band{"theta", 4, 8}
	AlphaBand    = Band{"alpha", 8, 13}
	BetaBand     = Band{"beta", 13, 30}
	LowBetaBand  = Band{"low_beta", 13, 20}
	HighBetaBand = Band{"high_beta", 20, 30}
)

// SpectrumBands are the four canonical QEEG bands.
var SpectrumBands = []Band{DeltaBand, ThetaBand, AlphaBand, BetaBand}

// ConnectivityBands adds the beta sub-bands used by spectral connectivity.
var ConnectivityBands = []Band{DeltaBand, ThetaBand, AlphaBand, BetaBand, LowBetaBand, HighBetaBand}

var (
	StableFrontalSensors   = []string{"F3", "Fz", "F4"}
	StableCentralSensors   = []string{"C3", "Cz", "C4"}
	StablePosteriorSensors = []string{"P3", "Pz", "P4"}
)

const (
	// FrontalGeneratorThreshold is the frontal/posterior alpha relative power
	// ratio at or above which alpha is considered frontally generated.
	FrontalGeneratorThreshold = 1.0

	// LowVoltageThreshold in microvolts.
	LowVoltageThreshold = 2.5

	ECGArtifactICADetectionThreshold = 0.75

	DefaultSamplingRate = 256.0

	// NyquistLimit caps spectral estimates in Hz.
	NyquistLimit = 100.0

	DefaultFloatPrecision = 6
)

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Finite replaces NaN and infinities with zero so results stay encodable as
// JSON.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
