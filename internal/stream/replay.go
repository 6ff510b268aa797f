package stream

import (
	"context"
	"fmt"
	"time"

	"eyedrive/internal/fault"
	"eyedrive/internal/recording"
)

// Replay plays a recording back as a live source.
type Replay struct {
	desc     Descriptor
	reader   *recording.Reader
	realtime bool
	n        int64
	start    time.Time
}

// OpenReplay opens the recording at d.Address.
func OpenReplay(d Descriptor, realtime bool) (*Replay, error) {
	r, err := recording.Open(d.Address)
	if err != nil {
		return nil, err
	}
	h := r.Header()
	d.SampleRate = h.SampleRate
	d.ChannelCount = h.Channels
	return &Replay{desc: d, reader: r, realtime: realtime}, nil
}

// replayDescriptor reads the stored format of a replay source. Name and id
// stay as configured.
func replayDescriptor(s SourceConfig) (Descriptor, error) {
	r, err := recording.Open(s.Address)
	if err != nil {
		return Descriptor{}, fmt.Errorf("replay source %s: %w", s.Name, err)
	}
	defer r.Close()

	d := s.Descriptor()
	h := r.Header()
	d.SampleRate = h.SampleRate
	d.ChannelCount = h.Channels
	if d.Type == "" {
		d.Type = "EEG"
	}
	return d, nil
}

func (r *Replay) Info() Descriptor {
	return r.desc
}

func (r *Replay) Pull(ctx context.Context, timeout time.Duration) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.realtime {
		if r.start.IsZero() {
			r.start = time.Now()
		}
		due := r.start.Add(time.Duration(float64(r.n) / r.desc.SampleRate * float64(time.Second)))
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
	sample, err := r.reader.Next()
	if err != nil {
		return nil, err
	}
	r.n++
	return sample, nil
}

func (r *Replay) Close() error {
	return r.reader.Close()
}
