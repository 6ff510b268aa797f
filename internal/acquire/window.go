package acquire

import "fmt"

// Window keeps the most recent capacity samples of a fixed number of
// channels in one flat arena.
type Window struct {
	arena    []float64
	channels int
	capacity int
	next     int // slot the next sample goes to
	count    int
	fs       float64
}

// NewWindow allocates a window for capacity samples of channels values.
func NewWindow(capacity, channels int, fs float64) (*Window, error) {
	if capacity <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid window %d samples x %d channels", capacity, channels)
	}
	return &Window{
		arena:    make([]float64, capacity*channels),
		channels: channels,
		capacity: capacity,
		fs:       fs,
	}, nil
}

// Push stores the first channels values of sample, overwriting the oldest
// sample once the window is full.
func (w *Window) Push(sample []float64) error {
	if len(sample) < w.channels {
		return fmt.Errorf("sample has %d values, window has %d channels", len(sample), w.channels)
	}
	copy(w.arena[w.next*w.channels:(w.next+1)*w.channels], sample[:w.channels])
	w.next = (w.next + 1) % w.capacity
	if w.count < w.capacity {
		w.count++
	}
	return nil
}

// Len returns the number of buffered samples.
func (w *Window) Len() int {
	return w.count
}

// Cap returns the window capacity in samples.
func (w *Window) Cap() int {
	return w.capacity
}

// Full reports whether the window holds capacity samples.
func (w *Window) Full() bool {
	return w.count == w.capacity
}

// Reset drops all buffered samples.
func (w *Window) Reset() {
	w.next = 0
	w.count = 0
}

// Epoch copies the buffered samples, oldest first, into a new epoch.
func (w *Window) Epoch() *Epoch {
	data := make([][]float64, w.channels)
	for ch := range data {
		data[ch] = make([]float64, w.count)
	}
	start := (w.next - w.count + w.capacity) % w.capacity
	for i := 0; i < w.count; i++ {
		slot := (start + i) % w.capacity
		row := w.arena[slot*w.channels : (slot+1)*w.channels]
		for ch, v := range row {
			data[ch][i] = v
		}
	}
	return &Epoch{Data: data, SampleRate: w.fs}
}
