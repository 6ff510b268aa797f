package stream

import (
	"context"
	"io"
	"math"
	"math/rand"
	"time"

	"eyedrive/internal/fault"
)

// SyntheticConfig shapes the generated signal: one tone per segment, cycling
// through Frequencies, plus gaussian noise.
type SyntheticConfig struct {
	Frequencies     []float64     `mapstructure:"frequencies" yaml:"frequencies"`           // Tone in Hz per segment
	SegmentDuration time.Duration `mapstructure:"segment_duration" yaml:"segment_duration"` // Length of each segment
	Amplitude       float64       `mapstructure:"amplitude" yaml:"amplitude"`               // Tone amplitude
	Noise           float64       `mapstructure:"noise" yaml:"noise"`                       // Noise standard deviation
	Seed            int64         `mapstructure:"seed" yaml:"seed"`                         // Noise seed, same seed same stream
	Limit           int64         `mapstructure:"limit" yaml:"limit"`                       // Samples before io.EOF, 0 = endless
}

// DefaultSyntheticConfig alternates 10 Hz (alpha) and 20 Hz segments of 8
// seconds, which mimics eyes closed / eyes open trials.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Frequencies:     []float64{10, 20},
		SegmentDuration: 8 * time.Second,
		Amplitude:       10,
		Noise:           0.5,
		Seed:            1,
	}
}

// Synthetic generates a deterministic multi-channel test signal.
type Synthetic struct {
	desc     Descriptor
	cfg      SyntheticConfig
	realtime bool
	rng      *rand.Rand
	n        int64
	start    time.Time
}

// NewSynthetic creates a generator advertising d. With realtime set, samples
// are released at the nominal rate instead of as fast as they are pulled.
func NewSynthetic(d Descriptor, cfg SyntheticConfig, realtime bool) *Synthetic {
	if len(cfg.Frequencies) == 0 {
		cfg.Frequencies = []float64{10}
	}
	return &Synthetic{
		desc:     d,
		cfg:      cfg,
		realtime: realtime,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Synthetic) Info() Descriptor {
	return s.desc
}

// frequency returns the tone for stream time t seconds.
func (s *Synthetic) frequency(t float64) float64 {
	if s.cfg.SegmentDuration <= 0 || len(s.cfg.Frequencies) == 1 {
		return s.cfg.Frequencies[0]
	}
	seg := int64(t / s.cfg.SegmentDuration.Seconds())
	return s.cfg.Frequencies[seg%int64(len(s.cfg.Frequencies))]
}

func (s *Synthetic) Pull(ctx context.Context, timeout time.Duration) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.cfg.Limit > 0 && s.n >= s.cfg.Limit {
		return nil, io.EOF
	}

	fs := s.desc.SampleRate
	if s.realtime {
		if s.start.IsZero() {
			s.start = time.Now()
		}
		due := s.start.Add(time.Duration(float64(s.n) / fs * float64(time.Second)))
		if wait := time.Until(due); wait > 0 {
			if timeout > 0 && wait > timeout {
				if err := sleepCtx(ctx, timeout); err != nil {
					return nil, err
				}
				return nil, fault.ErrAcquisitionTimeout
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	t := float64(s.n) / fs
	f := s.frequency(t)
	sample := make([]float64, s.desc.ChannelCount)
	for ch := range sample {
		phase := 0.7 * float64(ch)
		sample[ch] = s.cfg.Amplitude*math.Sin(2*math.Pi*f*t+phase) + s.cfg.Noise*s.rng.NormFloat64()
	}
	s.n++
	return sample, nil
}

func (s *Synthetic) Close() error {
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
