// Package session owns one connection to a sample stream and runs the
// classification pipeline over it: acquire, band-pass, band ratio, vote and,
// in the duty cycle, actuation.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"eyedrive/internal/acquire"
	"eyedrive/internal/classifier"
	"eyedrive/internal/config"
	"eyedrive/internal/control"
	"eyedrive/internal/fault"
	"eyedrive/internal/filter"
	"eyedrive/internal/recording"
	"eyedrive/internal/spectral"
	"eyedrive/internal/stream"
)

// Session is a connected stream plus the settings every cycle uses. The
// stream format is captured at connect time and never changes.
type Session struct {
	ID       string
	Started  time.Time
	desc     stream.Descriptor
	fs       float64
	channels int

	cfg      *config.Config
	inlet    stream.Inlet
	recorder *recording.Writer
	mapper   *control.Mapper
	sleeper  control.Sleeper
	logger   *slog.Logger
}

// Option customises a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSleeper replaces the clock used for the phase gap and cooldown.
func WithSleeper(sl control.Sleeper) Option {
	return func(s *Session) { s.sleeper = sl }
}

// Connect resolves the configured stream, checks it offers enough channels
// and opens it. A configured sample rate overrides the advertised one.
func Connect(ctx context.Context, resolver stream.Resolver, cfg *config.Config, opts ...Option) (*Session, error) {
	s := &Session{
		ID:       uuid.NewString(),
		cfg:      cfg,
		channels: cfg.Stream.Channels,
		sleeper:  control.WallClock,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	descs, err := resolver.Resolve(ctx, cfg.Stream.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve streams: %w", err)
	}
	desc, ok := stream.Select(descs, cfg.Stream.Name)
	if !ok {
		return nil, fmt.Errorf("no %s stream found", cfg.Stream.Type)
	}
	if cfg.Stream.Name != "" && desc.Name != cfg.Stream.Name {
		s.logger.Warn("configured stream not found, using first match", "wanted", cfg.Stream.Name, "using", desc.Name)
	}

	// Fail before connecting rather than on the first epoch
	if err := acquire.CheckChannels(desc, s.channels); err != nil {
		return nil, err
	}

	inlet, err := resolver.Connect(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", desc.Name, err)
	}

	s.desc = desc
	s.fs = desc.SampleRate
	if cfg.Stream.SampleRate > 0 {
		s.fs = cfg.Stream.SampleRate
	}
	if s.fs <= 0 {
		inlet.Close()
		return nil, fault.Configf("stream %s has no usable sample rate", desc.Name)
	}
	s.inlet = inlet
	s.Started = time.Now()

	if cfg.Recording.Path != "" {
		if err := s.startRecording(cfg.Recording.Path); err != nil {
			inlet.Close()
			return nil, err
		}
	}

	s.logger.Info("stream connected",
		"session", s.ID,
		"stream", desc.Name,
		"source_id", desc.SourceID,
		"channels", desc.ChannelCount,
		"using", s.channels,
		"sample_rate", s.fs)
	return s, nil
}

func (s *Session) startRecording(path string) error {
	w, err := recording.Create(path, recording.Header{
		SampleRate: s.fs,
		Channels:   s.desc.ChannelCount,
		Started:    s.Started,
		Name:       s.desc.Name,
		SourceID:   s.desc.SourceID,
		SessionID:  s.ID,
	})
	if err != nil {
		return err
	}
	s.recorder = w
	s.inlet = &teeInlet{Inlet: s.inlet, w: w}
	s.logger.Info("recording raw stream", "path", path)
	return nil
}

// Descriptor returns the connected stream.
func (s *Session) Descriptor() stream.Descriptor {
	return s.desc
}

// SampleRate returns the rate used to size epochs.
func (s *Session) SampleRate() float64 {
	return s.fs
}

// Inlet returns the connected inlet.
func (s *Session) Inlet() stream.Inlet {
	return s.inlet
}

// AttachActuator routes control codes to transport using the configured table.
func (s *Session) AttachActuator(transport io.Writer, opts ...control.Option) error {
	base, err := s.cfg.Control.MapperOptions()
	if err != nil {
		return err
	}
	base = append(base, control.WithLogger(s.logger), control.WithSleeper(s.sleeper))
	s.mapper = control.NewMapper(transport, append(base, opts...)...)
	return nil
}

// Close releases the stream and finishes the recording.
func (s *Session) Close() error {
	var errs []error
	if s.inlet != nil {
		if err := s.inlet.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stream: %w", err))
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recording: %w", err))
		} else {
			s.logger.Info("recording closed", "samples", s.recorder.Samples())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %w", errors.Join(errs...))
	}
	return nil
}

// TrialResult is the evidence for one classified epoch.
type TrialResult struct {
	Results []spectral.Result
	Outcome classifier.Outcome
}

// Decision is the classified eye state.
func (r *TrialResult) Decision() classifier.Decision {
	return r.Outcome.Decision
}

// Classify runs filter, spectral estimate and vote over one epoch. Errors are
// tagged with the stage that raised them.
func (s *Session) Classify(e *acquire.Epoch) (*TrialResult, error) {
	return Classify(s.cfg, e)
}

// Classify is the pipeline behind Session.Classify, usable on recorded epochs
// without a live stream.
func Classify(cfg *config.Config, e *acquire.Epoch) (*TrialResult, error) {
	filtered, err := filter.Condition(e.Data, e.SampleRate, cfg.Filter)
	if err != nil {
		return nil, fault.InStage(fault.StageFilter, err)
	}

	results := spectral.Analyze(filtered, e.SampleRate, cfg.Spectral)
	if len(results) != e.Channels() {
		return nil, fault.InStage(fault.StageSpectral,
			fmt.Errorf("expected %d channel ratios, got %d", e.Channels(), len(results)))
	}
	// Corrupt samples must not vote; a NaN spectrum would read as ratio 0
	if err := spectral.Check(results); err != nil {
		return nil, fault.InStage(fault.StageSpectral, err)
	}

	outcome, err := cfg.Classifier.Explain(spectral.Ratios(results))
	if err != nil {
		return nil, fault.InStage(fault.StageClassify, err)
	}
	return &TrialResult{Results: results, Outcome: outcome}, nil
}

// Trial collects one trial-length epoch and classifies it.
func (s *Session) Trial(ctx context.Context) (*TrialResult, error) {
	e, err := acquire.Collect(ctx, s.inlet, s.fs, s.cfg.Acquisition.TrialDuration, s.channels)
	if err != nil {
		return nil, fault.InStage(fault.StageAcquire, err)
	}
	return s.Classify(e)
}

// teeInlet copies every pulled sample into a recording.
type teeInlet struct {
	stream.Inlet
	w *recording.Writer
}

func (t *teeInlet) Pull(ctx context.Context, timeout time.Duration) ([]float64, error) {
	sample, err := t.Inlet.Pull(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if err := t.w.WriteSample(sample); err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}
	return sample, nil
}
