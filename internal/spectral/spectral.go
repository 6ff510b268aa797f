// Package spectral estimates power spectral density with Welch's method and
// reduces it to band-power figures.
package spectral

import (
	"errors"
	"fmt"
	"math"

	dsp "github.com/mjibson/go-dsp/spectral"
	"github.com/mjibson/go-dsp/window"
)

// ErrNonFinite marks a spectrum computed from NaN or infinite samples.
var ErrNonFinite = errors.New("non-finite band power")

// DefaultStrongThreshold separates "strong" from "weak" task-band presence.
const DefaultStrongThreshold = 0.3

// Band is an inclusive frequency range in Hz.
type Band struct {
	Low  float64 `mapstructure:"low" yaml:"low"`
	High float64 `mapstructure:"high" yaml:"high"`
}

// Contains reports whether f lies inside the band, edges included.
func (b Band) Contains(f float64) bool {
	return f >= b.Low && f <= b.High
}

// Options configures the band ratio. Bands are per call so the same code can
// watch alpha, delta or anything else.
type Options struct {
	Task            Band    `mapstructure:"task" yaml:"task"`                         // Numerator band
	Reference       Band    `mapstructure:"reference" yaml:"reference"`               // Denominator band
	Nperseg         int     `mapstructure:"nperseg" yaml:"nperseg"`                   // Welch segment length, 0 = one second
	StrongThreshold float64 `mapstructure:"strong_threshold" yaml:"strong_threshold"` // Label threshold, informational
}

// DefaultOptions returns alpha (8-13 Hz) over 3-30 Hz with one second segments.
func DefaultOptions() Options {
	return Options{
		Task:            Band{Low: 8, High: 13},
		Reference:       Band{Low: 3, High: 30},
		StrongThreshold: DefaultStrongThreshold,
	}
}

// Welch returns the one-sided PSD of x and its frequency axis, averaging
// Hann-windowed periodograms over segments of nperseg samples with 50%
// overlap. nperseg <= 0 selects fs samples; it is capped at len(x).
func Welch(x []float64, fs float64, nperseg int) (freqs, psd []float64) {
	if len(x) == 0 {
		return nil, nil
	}
	if nperseg <= 0 {
		nperseg = int(fs)
	}
	if nperseg > len(x) {
		nperseg = len(x)
	}
	if nperseg < 1 {
		return nil, nil
	}

	// Pwelch windows its segments in place
	buf := make([]float64, len(x))
	copy(buf, x)

	psd, freqs = dsp.Pwelch(buf, fs, &dsp.PwelchOptions{
		NFFT:     nperseg,
		Noverlap: nperseg / 2,
		Window:   window.Hann,
	})
	return freqs, psd
}

// Conclusion is a qualitative label for a band ratio.
type Conclusion int

const (
	Weak Conclusion = iota
	Strong
)

func (c Conclusion) String() string {
	if c == Strong {
		return "strong"
	}
	return "weak"
}

// Result is the outcome of BandRatio for one channel.
type Result struct {
	TaskPower  float64
	TotalPower float64
	Ratio      float64
	Conclusion Conclusion
}

// BandRatio sums the PSD over the task and reference bands and returns their
// ratio. A zero reference power gives a ratio of 0, never an error.
func BandRatio(x []float64, fs float64, opts Options) Result {
	freqs, psd := Welch(x, fs, opts.Nperseg)

	var res Result
	for i, f := range freqs {
		if opts.Task.Contains(f) {
			res.TaskPower += psd[i]
		}
		if opts.Reference.Contains(f) {
			res.TotalPower += psd[i]
		}
	}

	if res.TotalPower > 0 {
		res.Ratio = res.TaskPower / res.TotalPower
	}

	threshold := opts.StrongThreshold
	if threshold == 0 {
		threshold = DefaultStrongThreshold
	}
	if res.Ratio > threshold {
		res.Conclusion = Strong
	}
	return res
}

// Finite reports whether both band powers are real numbers. A single NaN or
// infinite sample poisons the whole channel spectrum.
func (r Result) Finite() bool {
	return !math.IsNaN(r.TaskPower) && !math.IsInf(r.TaskPower, 0) &&
		!math.IsNaN(r.TotalPower) && !math.IsInf(r.TotalPower, 0)
}

// Check returns an error wrapping ErrNonFinite for the first channel whose
// band powers are not finite.
func Check(results []Result) error {
	for ch, r := range results {
		if !r.Finite() {
			return fmt.Errorf("channel %d: task power %v, reference power %v: %w", ch, r.TaskPower, r.TotalPower, ErrNonFinite)
		}
	}
	return nil
}

// Analyze runs BandRatio on every channel.
func Analyze(data [][]float64, fs float64, opts Options) []Result {
	out := make([]Result, len(data))
	for ch, samples := range data {
		out[ch] = BandRatio(samples, fs, opts)
	}
	return out
}

// Ratios returns the channel ratio vector, indexed like data.
func Ratios(results []Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Ratio
	}
	return out
}

// BandPower returns the mean PSD inside band, or 0 if no bin falls in it.
func BandPower(x []float64, fs float64, band Band, nperseg int) float64 {
	freqs, psd := Welch(x, fs, nperseg)

	var sum float64
	var n int
	for i, f := range freqs {
		if band.Contains(f) {
			sum += psd[i]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
