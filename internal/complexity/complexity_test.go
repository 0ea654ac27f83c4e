package complexity

import (
	"math"
	"math/rand"
	"testing"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/params"
)

func noise(n int, seed int64) []float64 {
	rnd := rand.New(rand.NewSource(seed))
	x := make([]float64, n)
	for i := range x {
		x[i] = rnd.NormFloat64()
	}
	return x
}

func walk(n int, seed int64) []float64 {
	x := noise(n, seed)
	for i := 1; i < n; i++ {
		x[i] += x[i-1]
	}
	return x
}

func sine(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 10 * float64(i) / 256)
	}
	return x
}

func within(t *testing.T, name string, got, lo, hi float64) {
	t.Helper()
	if got < lo || got > hi {
		t.Errorf("%s = %.3f, want [%.2f, %.2f]", name, got, lo, hi)
	}
}

func TestEntropiesOrderRegularity(t *testing.T) {
	regular, random := sine(800), noise(800, 1)
	if s, n := SampleEntropy(regular, 2, 0.2), SampleEntropy(random, 2, 0.2); s >= n || n < 1.5 {
		t.Errorf("sample entropy sine %.3f noise %.3f", s, n)
	}
	if s, n := ApproximateEntropy(regular, 2, 0.2), ApproximateEntropy(random, 2, 0.2); s >= n {
		t.Errorf("approximate entropy sine %.3f noise %.3f", s, n)
	}
	if SampleEntropy([]float64{1, 2}, 2, 0.2) != 0 {
		t.Error("short input should give zero")
	}
}

func TestHurst(t *testing.T) {
	within(t, "hurst(noise)", Hurst(noise(1000, 2)), 0.4, 0.75)
	within(t, "hurst(walk)", Hurst(walk(1000, 2)), 0.85, 1.2)
	if Hurst(make([]float64, 100)) != 0.5 {
		t.Error("flat signal should give 0.5")
	}
}

func TestHiguchi(t *testing.T) {
	within(t, "higuchi(noise)", Higuchi(noise(1000, 3), 10), 1.8, 2.1)
	within(t, "higuchi(sine)", Higuchi(sine(1000), 10), 0.9, 1.2)
}

func TestDFA(t *testing.T) {
	within(t, "dfa(noise)", DFA(noise(1000, 4)), 0.35, 0.65)
	within(t, "dfa(walk)", DFA(walk(1000, 4)), 1.3, 1.7)
}

func TestLempelZiv(t *testing.T) {
	constant := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	if got := LempelZiv(constant, 0.5); got != 2 {
		t.Errorf("constant = %d", got)
	}
	alternating := []float64{1, -1, 1, -1, 1, -1, 1, -1, 1, -1}
	if got := LempelZiv(alternating, 0.5); got != 3 {
		t.Errorf("alternating = %d", got)
	}
	if random := LempelZiv(noise(1000, 5), 0.5); random < 50 {
		t.Errorf("noise = %d", random)
	}
}

func TestPermutationEntropy(t *testing.T) {
	ramp := make([]float64, 100)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	if got := PermutationEntropy(ramp, 3, 1); got != 0 {
		t.Errorf("ramp = %v", got)
	}
	within(t, "pe(noise)", PermutationEntropy(noise(2000, 6), 3, 1), 0.95, 1)
}

func TestComputeAll(t *testing.T) {
	rec := &eeg.Recording{SampleRate: 256}
	for i, ch := range params.Channels1020 {
		rec.Channels = append(rec.Channels, eeg.Channel{Name: ch, Type: eeg.EEG})
		rec.Data = append(rec.Data, noise(2000, int64(i)))
	}
	rows, err := ComputeAll(rec, 400)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 19 {
		t.Fatalf("rows = %d", len(rows))
	}
	for i, r := range rows {
		if r.Channel != params.Channels1020[i] {
			t.Errorf("row %d is %s", i, r.Channel)
		}
		if r.SampleEntropy <= 0 || r.PermutationEntropy <= 0 || r.LempelZivComplexity <= 0 {
			t.Errorf("row = %+v", r)
		}
	}

	if _, err := ComputeAll(&eeg.Recording{}, 0); err == nil {
		t.Error("expected error without 10-20 channels")
	}
}
