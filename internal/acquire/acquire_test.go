package acquire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"eyedrive/internal/fault"
	"eyedrive/internal/stream"
)

// scriptedInlet replays a fixed list of pull results.
type scriptedInlet struct {
	desc    stream.Descriptor
	samples [][]float64
	errs    map[int]error // error returned at pull i instead of a sample
	pulls   int
	next    int
}

func (s *scriptedInlet) Info() stream.Descriptor { return s.desc }

func (s *scriptedInlet) Pull(ctx context.Context, timeout time.Duration) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := s.pulls
	s.pulls++
	if err, ok := s.errs[i]; ok {
		return nil, err
	}
	if s.next >= len(s.samples) {
		return nil, io.EOF
	}
	sample := s.samples[s.next]
	s.next++
	return sample, nil
}

func (s *scriptedInlet) Close() error { return nil }

func ramp(n, channels int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, channels)
		for ch := range out[i] {
			out[i][ch] = float64(i*10 + ch)
		}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollect(t *testing.T) {
	in := &scriptedInlet{desc: stream.Descriptor{ChannelCount: 3, SampleRate: 4}, samples: ramp(10, 3)}

	e, err := Collect(context.Background(), in, 4, 2*time.Second, 2)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if e.Channels() != 2 || e.Samples() != 8 {
		t.Fatalf("expected 2x8 epoch, got %dx%d", e.Channels(), e.Samples())
	}
	if e.Data[1][3] != 31 {
		t.Errorf("expected channel 1 sample 3 = 31, got %v", e.Data[1][3])
	}
	if in.next != 8 {
		t.Errorf("expected exactly 8 pulls, got %d", in.next)
	}
}

func TestCollectShortSample(t *testing.T) {
	in := &scriptedInlet{samples: [][]float64{{1, 2}}}
	_, err := Collect(context.Background(), in, 1, time.Second, 3)
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCollectEndOfStream(t *testing.T) {
	in := &scriptedInlet{samples: ramp(3, 1)}
	e, err := Collect(context.Background(), in, 4, time.Second, 1)
	if e != nil || !errors.Is(err, io.EOF) {
		t.Fatalf("expected no epoch and io.EOF, got %v, %v", e, err)
	}
}

func TestCheckChannels(t *testing.T) {
	d := stream.Descriptor{Name: "headset", ChannelCount: 8}
	if err := CheckChannels(d, 8); err != nil {
		t.Errorf("8 of 8 should pass: %v", err)
	}
	if err := CheckChannels(d, 14); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("14 of 8 should fail with a configuration error, got %v", err)
	}
}

func TestWindowChronologicalOrder(t *testing.T) {
	w, err := NewWindow(4, 2, 128)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range ramp(6, 3) {
		if err := w.Push(s); err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
		if i == 2 && w.Full() {
			t.Error("window full after 3 of 4 samples")
		}
	}
	if !w.Full() || w.Len() != 4 {
		t.Fatalf("expected full window of 4, got %d", w.Len())
	}

	e := w.Epoch()
	want := []float64{20, 30, 40, 50}
	for i, v := range want {
		if e.Data[0][i] != v {
			t.Errorf("channel 0 sample %d: expected %v, got %v", i, v, e.Data[0][i])
		}
		if e.Data[1][i] != v+1 {
			t.Errorf("channel 1 sample %d: expected %v, got %v", i, v+1, e.Data[1][i])
		}
	}

	// The epoch is a copy
	e.Data[0][0] = -1
	if w.Epoch().Data[0][0] != 20 {
		t.Error("modifying an epoch changed the window")
	}

	if err := w.Push([]float64{1}); err == nil {
		t.Error("short sample should be rejected")
	}
	w.Reset()
	if w.Len() != 0 {
		t.Error("Reset should empty the window")
	}
}

func TestMonitorCycles(t *testing.T) {
	in := &scriptedInlet{
		desc:    stream.Descriptor{Name: "s", ChannelCount: 2, SampleRate: 4},
		samples: ramp(16, 2),
		errs:    map[int]error{5: fault.ErrAcquisitionTimeout},
	}
	m, err := NewMonitor(in, MonitorConfig{Window: 2 * time.Second, Hop: 4, Channels: 2}, quietLogger())
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}

	var firsts []float64
	err = m.Run(context.Background(), func(ctx context.Context, e *Epoch) error {
		if e.Samples() != 8 {
			t.Errorf("expected 8-sample epochs, got %d", e.Samples())
		}
		firsts = append(firsts, e.Data[0][0])
		return fault.InStage(fault.StageFilter, errors.New("handler failure is logged"))
	})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected the run to end with io.EOF, got %v", err)
	}
	if fault.StageOf(err) != fault.StageAcquire {
		t.Errorf("expected acquire stage on the end error, got %q", fault.StageOf(err))
	}

	// Cycles after samples 8, 12 and 16; the timeout is skipped without loss
	want := []float64{0, 40, 80}
	if len(firsts) != len(want) {
		t.Fatalf("expected %d cycles, got %d", len(want), len(firsts))
	}
	for i := range want {
		if firsts[i] != want[i] {
			t.Errorf("cycle %d: expected first sample %v, got %v", i, want[i], firsts[i])
		}
	}
	if m.Timeouts() != 1 || m.Cycles() != 3 {
		t.Errorf("expected 1 timeout and 3 cycles, got %d and %d", m.Timeouts(), m.Cycles())
	}
}

func TestMonitorStopsOnCancel(t *testing.T) {
	in := &scriptedInlet{desc: stream.Descriptor{ChannelCount: 1, SampleRate: 2}, samples: ramp(100, 1)}
	m, err := NewMonitor(in, MonitorConfig{Window: time.Second, Channels: 1}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	err = m.Run(ctx, func(ctx context.Context, e *Epoch) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if m.Cycles() != 1 {
		t.Errorf("expected to stop after the first cycle, got %d", m.Cycles())
	}
}

func TestNewMonitorChannelShortfall(t *testing.T) {
	in := &scriptedInlet{desc: stream.Descriptor{ChannelCount: 4, SampleRate: 128}}
	if _, err := NewMonitor(in, MonitorConfig{Window: time.Second, Channels: 14}, nil); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
