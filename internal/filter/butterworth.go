// Package filter implements the zero-phase Butterworth band-pass used to
// condition each EEG channel before spectral analysis.
//
// The design follows the analog prototype route: Butterworth poles on the unit
// circle, low-pass to band-pass transform, then the bilinear transform with
// prewarped band edges. The result is kept as a cascade of second-order
// sections instead of one high-order polynomial, which stays well conditioned
// for the narrow, low-frequency bands EEG work needs.
package filter

import (
	"fmt"
	"math"
	"math/cmplx"

	"eyedrive/internal/fault"
)

// DefaultOrder is the prototype order used when none is configured.
const DefaultOrder = 4

// bilinear transform constant for a sample rate normalised to 2 (Nyquist = 1).
const fs2 = 4.0

// ConfigError reports band edges that violate 0 < low < high < 1 after
// normalisation by the Nyquist frequency.
type ConfigError struct {
	Low        float64 // lowcut / nyq
	High       float64 // highcut / nyq
	SampleRate float64
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid filter: low=%.3f, high=%.3f, fs=%g", e.Low, e.High, e.SampleRate)
}

func (e *ConfigError) Unwrap() error {
	return fault.ErrConfiguration
}

// Section is one biquad in transposed direct form II with a0 normalised to 1.
type Section struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// response evaluates the section transfer function at w radians/sample.
func (s Section) response(w float64) complex128 {
	e1 := cmplx.Exp(complex(0, -w))
	e2 := e1 * e1
	num := complex(s.B0, 0) + complex(s.B1, 0)*e1 + complex(s.B2, 0)*e2
	den := 1 + complex(s.A1, 0)*e1 + complex(s.A2, 0)*e2
	return num / den
}

// steadyState returns the delay line contents reached after an infinitely
// long unit step, so filtering can start without a transient.
func (s Section) steadyState() (z1, z2 float64) {
	c1 := s.B1 - s.A1*s.B0
	c2 := s.B2 - s.A2*s.B0
	z1 = (c1 + c2) / (1 + s.A1 + s.A2)
	z2 = c2 - s.A2*z1
	return z1, z2
}

// dcGain is H(z=1).
func (s Section) dcGain() float64 {
	return (s.B0 + s.B1 + s.B2) / (1 + s.A1 + s.A2)
}

// run filters y in place starting from the given delay line.
func (s Section) run(y []float64, z1, z2 float64) {
	for i, in := range y {
		out := s.B0*in + z1
		z1 = s.B1*in - s.A1*out + z2
		z2 = s.B2*in - s.A2*out
		y[i] = out
	}
}

// Bandpass is a designed band-pass filter. It holds coefficients only, so one
// value can be shared by every channel and every epoch.
type Bandpass struct {
	Order      int
	Low, High  float64 // normalised cutoffs
	SampleRate float64
	sections   []Section
}

// Design builds an order-N Butterworth band-pass for [lowcut, highcut] Hz at
// sample rate fs. The normalised cutoffs must satisfy 0 < low < high < 1.
func Design(order int, lowcut, highcut, fs float64) (*Bandpass, error) {
	if order < 1 {
		return nil, fault.Configf("filter order must be positive, got %d", order)
	}

	nyq := 0.5 * fs
	low := lowcut / nyq
	high := highcut / nyq
	if !(0 < low && low < high && high < 1) {
		return nil, &ConfigError{Low: low, High: high, SampleRate: fs}
	}

	// Prewarp the band edges
	wl := fs2 * math.Tan(math.Pi*low/2)
	wh := fs2 * math.Tan(math.Pi*high/2)
	bw := wh - wl
	w0sq := wl * wh
	center := 2 * math.Atan(math.Sqrt(w0sq)/fs2)

	bilinear := func(s complex128) complex128 {
		return (fs2 + s) / (fs2 - s)
	}

	sections := make([]Section, 0, order)
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		p := cmplx.Rect(1, theta)

		// Conjugate poles are covered by their upper half partner
		if imag(p) < -1e-12 {
			continue
		}

		h := p * complex(bw/2, 0)
		d := cmplx.Sqrt(h*h - complex(w0sq, 0))
		z1 := bilinear(h + d)
		z2 := bilinear(h - d)

		if math.Abs(imag(p)) <= 1e-12 {
			// Real prototype pole (odd order) yields one section
			sections = append(sections, Section{
				B0: 1, B2: -1,
				A1: -real(z1 + z2),
				A2: real(z1 * z2),
			})
			continue
		}

		for _, z := range []complex128{z1, z2} {
			sections = append(sections, Section{
				B0: 1, B2: -1,
				A1: -2 * real(z),
				A2: real(z)*real(z) + imag(z)*imag(z),
			})
		}
	}

	// Unity gain at the geometric band centre, spread evenly over the cascade
	for i := range sections {
		g := 1 / cmplx.Abs(sections[i].response(center))
		sections[i].B0 *= g
		sections[i].B2 *= g
	}

	return &Bandpass{
		Order:      order,
		Low:        low,
		High:       high,
		SampleRate: fs,
		sections:   sections,
	}, nil
}

// Sections returns a copy of the designed second-order sections.
func (b *Bandpass) Sections() []Section {
	out := make([]Section, len(b.sections))
	copy(out, b.sections)
	return out
}

// Response returns the magnitude response at freq Hz.
func (b *Bandpass) Response(freq float64) float64 {
	w := math.Pi * freq / (0.5 * b.SampleRate)
	mag := 1.0
	for _, s := range b.sections {
		mag *= cmplx.Abs(s.response(w))
	}
	return mag
}
