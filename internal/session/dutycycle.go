package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"eyedrive/internal/control"
	"eyedrive/internal/fault"
)

// CycleResult is one completed duty cycle.
type CycleResult struct {
	Seq    int
	First  *TrialResult
	Second *TrialResult
	Code   control.Code
	Action control.Action
}

// DutyCycle runs phase one, waits the phase gap, runs phase two, sends the
// resulting code to the actuator and rests for the cooldown.
func (s *Session) DutyCycle(ctx context.Context) (*CycleResult, error) {
	if s.mapper == nil {
		return nil, fmt.Errorf("no actuator attached")
	}

	s.logger.Info("phase 1: collecting", "duration", s.cfg.Acquisition.TrialDuration)
	first, err := s.Trial(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("phase 1 result", "decision", first.Decision(), "votes", first.Outcome.String())

	if err := s.countdown(ctx, "phase 2 starts", s.cfg.Acquisition.PhaseGap); err != nil {
		return nil, err
	}

	s.logger.Info("phase 2: collecting", "duration", s.cfg.Acquisition.TrialDuration)
	second, err := s.Trial(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("phase 2 result", "decision", second.Decision(), "votes", second.Outcome.String())

	res := &CycleResult{
		First:  first,
		Second: second,
		Code:   control.MakeCode(first.Decision(), second.Decision()),
	}
	res.Action, err = s.mapper.Execute(ctx, res.Code)
	if err != nil {
		return res, fault.InStage(fault.StageActuate, err)
	}

	if err := s.countdown(ctx, "cooling down", s.cfg.Acquisition.Cooldown); err != nil {
		return res, err
	}
	return res, nil
}

// countdown waits d in one second steps, logging the time left.
func (s *Session) countdown(ctx context.Context, what string, d time.Duration) error {
	for left := d; left > 0; left -= time.Second {
		s.logger.Info(what, "in", left.Round(time.Second))
		step := time.Second
		if left < step {
			step = left
		}
		if err := s.sleeper.Sleep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// RunDutyCycles repeats DutyCycle until ctx is done, the stream ends or n
// cycles completed (n <= 0 means no limit). A failed cycle is logged with its
// stage and the next one starts. onCycle, when set, sees every completed
// cycle.
func (s *Session) RunDutyCycles(ctx context.Context, n int, onCycle func(*CycleResult)) error {
	for seq := 1; n <= 0 || seq <= n; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := s.DutyCycle(ctx)
		switch {
		case err == nil:
			res.Seq = seq
			s.logger.Info("duty cycle complete", "cycle", seq, "code", string(res.Code), "action", res.Action.String())
			if onCycle != nil {
				onCycle(res)
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, io.EOF):
			return fmt.Errorf("stream ended: %w", err)
		default:
			s.logger.Error("duty cycle failed", "cycle", seq, "stage", fault.StageOf(err), "error", err)
		}
	}
	return nil
}
