package filter

import (
	"errors"
	"math"
	"strings"
	"testing"

	"eyedrive/internal/fault"
)

func sineWave(freq, fs float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / fs)
	}
	return out
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestDesignEdgeResponse(t *testing.T) {
	bp, err := Design(4, 8, 13, 250)
	if err != nil {
		t.Fatalf("Design failed: %v", err)
	}

	if got := len(bp.Sections()); got != 4 {
		t.Fatalf("expected 4 second-order sections for order 4, got %d", got)
	}

	// Butterworth edges sit at -3 dB
	for _, f := range []float64{8, 13} {
		if got := bp.Response(f); math.Abs(got-1/math.Sqrt2) > 1e-6 {
			t.Errorf("response at %.0f Hz: expected %.6f, got %.6f", f, 1/math.Sqrt2, got)
		}
	}

	if got := bp.Response(math.Sqrt(8 * 13)); math.Abs(got-1) > 1e-3 {
		t.Errorf("response at band centre should be ~1, got %.6f", got)
	}

	if got := bp.Response(60); got > 1e-3 {
		t.Errorf("response at 60 Hz should be strongly attenuated, got %.6f", got)
	}
}

func TestDesignOddOrder(t *testing.T) {
	bp, err := Design(3, 3, 30, 250)
	if err != nil {
		t.Fatalf("Design failed: %v", err)
	}
	if got := len(bp.Sections()); got != 3 {
		t.Fatalf("expected 3 sections for order 3, got %d", got)
	}
	if got := bp.Response(30); math.Abs(got-1/math.Sqrt2) > 1e-6 {
		t.Errorf("response at upper edge: got %.6f", got)
	}
}

func TestDesignRejectsInvalidCutoffs(t *testing.T) {
	tests := []struct {
		name             string
		lowcut, highcut  float64
		fs               float64
		wantLow, wantHig string
	}{
		{"inverted", 30, 8, 250, "low=0.240", "high=0.064"},
		{"zero low", 0, 13, 250, "low=0.000", "high=0.104"},
		{"high at nyquist", 8, 125, 250, "low=0.064", "high=1.000"},
		{"high above nyquist", 2, 4, 6, "low=0.667", "high=1.333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp, err := Design(4, tt.lowcut, tt.highcut, tt.fs)
			if err == nil {
				t.Fatalf("expected error, got filter %+v", bp)
			}
			if bp != nil {
				t.Fatal("no filter may be returned on error")
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if !errors.Is(err, fault.ErrConfiguration) {
				t.Error("ConfigError should unwrap to fault.ErrConfiguration")
			}
			msg := err.Error()
			if !strings.Contains(msg, tt.wantLow) || !strings.Contains(msg, tt.wantHig) {
				t.Errorf("message %q should carry %s and %s", msg, tt.wantLow, tt.wantHig)
			}
			if cfgErr.SampleRate != tt.fs {
				t.Errorf("expected sample rate %g in error, got %g", tt.fs, cfgErr.SampleRate)
			}
		})
	}
}

func TestFiltFiltPassband(t *testing.T) {
	const fs = 250.0
	bp, err := Design(4, 3, 30, fs)
	if err != nil {
		t.Fatalf("Design failed: %v", err)
	}

	in := sineWave(10, fs, 1000)
	out := bp.FiltFilt(in)
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}

	// Compare away from the edges
	ratio := rms(out[250:750]) / rms(in[250:750])
	if ratio < 0.95 || ratio > 1.05 {
		t.Errorf("10 Hz tone should pass a 3-30 Hz band, amplitude ratio %.4f", ratio)
	}

	// Zero phase: the filtered tone stays aligned with the input
	var maxDiff float64
	for i := 250; i < 750; i++ {
		maxDiff = math.Max(maxDiff, math.Abs(out[i]-in[i]))
	}
	if maxDiff > 0.1 {
		t.Errorf("filtered passband tone drifted from input by %.4f", maxDiff)
	}
}

func TestFiltFiltStopband(t *testing.T) {
	const fs = 250.0
	bp, err := Design(4, 8, 13, fs)
	if err != nil {
		t.Fatalf("Design failed: %v", err)
	}

	in := sineWave(60, fs, 1000)
	out := bp.FiltFilt(in)
	if ratio := rms(out[250:750]) / rms(in[250:750]); ratio > 0.01 {
		t.Errorf("60 Hz tone should be rejected by an 8-13 Hz band, amplitude ratio %.4f", ratio)
	}
}

func TestFiltFiltShortInput(t *testing.T) {
	bp, err := Design(4, 8, 13, 250)
	if err != nil {
		t.Fatalf("Design failed: %v", err)
	}
	for _, n := range []int{0, 1, 2, 10} {
		out := bp.FiltFilt(make([]float64, n))
		if len(out) != n {
			t.Errorf("length %d: got %d samples back", n, len(out))
		}
	}
}

func TestConditionKeepsShapeAndInput(t *testing.T) {
	const fs = 128.0
	data := [][]float64{
		sineWave(10, fs, 512),
		sineWave(20, fs, 512),
		sineWave(40, fs, 512),
	}
	orig := make([][]float64, len(data))
	for i := range data {
		orig[i] = append([]float64(nil), data[i]...)
	}

	out, err := Condition(data, fs, DefaultParams())
	if err != nil {
		t.Fatalf("Condition failed: %v", err)
	}
	if len(out) != len(data) {
		t.Fatalf("expected %d channels, got %d", len(data), len(out))
	}
	for ch := range out {
		if len(out[ch]) != len(data[ch]) {
			t.Errorf("channel %d: expected %d samples, got %d", ch, len(data[ch]), len(out[ch]))
		}
		for i := range data[ch] {
			if data[ch][i] != orig[ch][i] {
				t.Fatalf("channel %d sample %d of the input was modified", ch, i)
			}
		}
	}
}

func TestConditionInvalidReturnsNothing(t *testing.T) {
	data := [][]float64{sineWave(10, 50, 200)}
	out, err := Condition(data, 50, Params{Order: 4, LowCut: 8, HighCut: 30})
	if err == nil {
		t.Fatal("expected configuration error for highcut above Nyquist")
	}
	if out != nil {
		t.Fatal("no partial result may be returned")
	}
}
