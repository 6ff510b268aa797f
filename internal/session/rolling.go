package session

import (
	"context"

	"eyedrive/internal/acquire"
)

// RunRolling classifies the most recent window every hop of new data until
// ctx is done or the stream fails. Cycle errors are logged and skipped.
func (s *Session) RunRolling(ctx context.Context, onResult func(*TrialResult)) error {
	a := s.cfg.Acquisition
	m, err := acquire.NewMonitor(s.inlet, acquire.MonitorConfig{
		Window:      a.Window,
		Hop:         acquire.SampleCount(s.fs, a.Hop),
		PullTimeout: a.PullTimeout,
		Channels:    s.channels,
		SampleRate:  s.fs,
	}, s.logger)
	if err != nil {
		return err
	}

	return m.Run(ctx, func(ctx context.Context, e *acquire.Epoch) error {
		res, err := s.Classify(e)
		if err != nil {
			return err
		}
		s.logger.Debug("rolling decision", "cycle", m.Cycles(), "decision", res.Decision(), "votes", res.Outcome.String())
		if onResult != nil {
			onResult(res)
		}
		return nil
	})
}
