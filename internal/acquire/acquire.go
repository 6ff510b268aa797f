// Package acquire turns a sample stream into fixed-size multi-channel epochs.
//
// Collect gathers one epoch for a trial. Window is the ring buffer behind
// rolling classification and Monitor drives it.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"eyedrive/internal/fault"
	"eyedrive/internal/stream"
)

// Epoch is a channels x samples block. Every channel holds exactly the same
// number of samples. Consumers must not modify Data.
type Epoch struct {
	Data       [][]float64
	SampleRate float64
}

// Channels returns the channel count.
func (e *Epoch) Channels() int {
	return len(e.Data)
}

// Samples returns the per-channel sample count.
func (e *Epoch) Samples() int {
	if len(e.Data) == 0 {
		return 0
	}
	return len(e.Data[0])
}

// SampleCount returns the number of samples in a window of duration at fs.
func SampleCount(fs float64, duration time.Duration) int {
	return int(math.Round(fs * duration.Seconds()))
}

// CheckChannels fails when the source offers fewer than required channels.
func CheckChannels(d stream.Descriptor, required int) error {
	if required <= 0 {
		return fault.Configf("invalid channel count %d", required)
	}
	if d.ChannelCount < required {
		return fault.Configf("stream %s has %d channels, %d required", d.Name, d.ChannelCount, required)
	}
	return nil
}

// Collect blocks until fs*duration samples have been pulled and returns them
// as an epoch of the first channels values of each sample.
func Collect(ctx context.Context, in stream.Inlet, fs float64, duration time.Duration, channels int) (*Epoch, error) {
	n := SampleCount(fs, duration)
	if n <= 0 {
		return nil, fault.Configf("window of %v at %g Hz holds no samples", duration, fs)
	}
	if channels <= 0 {
		return nil, fault.Configf("invalid channel count %d", channels)
	}

	data := make([][]float64, channels)
	for ch := range data {
		data[ch] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		sample, err := in.Pull(ctx, 0)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("stream ended after %d of %d samples: %w", i, n, err)
			}
			return nil, fmt.Errorf("pull sample %d: %w", i, err)
		}
		if len(sample) < channels {
			return nil, fault.Configf("sample has %d values, %d channels required", len(sample), channels)
		}
		for ch := 0; ch < channels; ch++ {
			data[ch][i] = sample[ch]
		}
	}
	return &Epoch{Data: data, SampleRate: fs}, nil
}
