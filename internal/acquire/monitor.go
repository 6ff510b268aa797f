package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eyedrive/internal/fault"
	"eyedrive/internal/stream"
)

// DefaultPullTimeout bounds each pull in rolling mode.
const DefaultPullTimeout = time.Second

// Handler processes one rolling epoch.
type Handler func(ctx context.Context, e *Epoch) error

// MonitorConfig configures rolling acquisition.
type MonitorConfig struct {
	Window      time.Duration // Epoch length
	Hop         int           // New samples between cycles, 0 = one second of samples
	PullTimeout time.Duration // 0 = DefaultPullTimeout
	Channels    int
	SampleRate  float64 // 0 = the inlet's advertised rate
}

// Monitor feeds a ring buffer from an inlet and hands the newest full
// window to a handler every Hop samples.
type Monitor struct {
	in          stream.Inlet
	window      *Window
	hop         int
	pullTimeout time.Duration
	logger      *slog.Logger

	cycles   int
	timeouts int
}

// NewMonitor sizes the ring for cfg.Window at the inlet's sample rate.
func NewMonitor(in stream.Inlet, cfg MonitorConfig, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	desc := in.Info()
	if err := CheckChannels(desc, cfg.Channels); err != nil {
		return nil, err
	}
	fs := cfg.SampleRate
	if fs <= 0 {
		fs = desc.SampleRate
	}
	capacity := SampleCount(fs, cfg.Window)
	if capacity <= 0 {
		return nil, fault.Configf("window of %v at %g Hz holds no samples", cfg.Window, fs)
	}
	w, err := NewWindow(capacity, cfg.Channels, fs)
	if err != nil {
		return nil, fault.Configf("%v", err)
	}

	hop := cfg.Hop
	if hop <= 0 {
		hop = SampleCount(fs, time.Second)
	}
	if hop <= 0 {
		hop = 1
	}
	timeout := cfg.PullTimeout
	if timeout <= 0 {
		timeout = DefaultPullTimeout
	}

	return &Monitor{
		in:          in,
		window:      w,
		hop:         hop,
		pullTimeout: timeout,
		logger:      logger,
	}, nil
}

// Cycles returns the number of epochs handed to the handler.
func (m *Monitor) Cycles() int {
	return m.cycles
}

// Timeouts returns the number of pulls that timed out.
func (m *Monitor) Timeouts() int {
	return m.timeouts
}

// Run pulls until ctx is done or the source fails. Handler errors are logged
// and do not stop the loop. A timed out pull skips the tick and keeps what is
// already buffered.
func (m *Monitor) Run(ctx context.Context, handle Handler) error {
	sinceCycle := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sample, err := m.in.Pull(ctx, m.pullTimeout)
		switch {
		case errors.Is(err, fault.ErrAcquisitionTimeout):
			m.timeouts++
			m.logger.Debug("pull timed out, skipping tick", "buffered", m.window.Len())
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			return fault.InStage(fault.StageAcquire, fmt.Errorf("rolling pull: %w", err))
		}

		if err := m.window.Push(sample); err != nil {
			return fault.InStage(fault.StageAcquire, fault.Configf("%v", err))
		}
		sinceCycle++

		if !m.window.Full() || sinceCycle < m.hop {
			continue
		}
		sinceCycle = 0
		m.cycles++
		if err := handle(ctx, m.window.Epoch()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("rolling cycle failed", "cycle", m.cycles, "stage", fault.StageOf(err), "error", err)
		}
	}
}
