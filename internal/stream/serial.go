package stream

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"eyedrive/internal/fault"
)

const serialPollInterval = 100 * time.Millisecond

// SerialSource reads newline-terminated sample lines from a serial headset
// bridge. Each line carries one value per channel separated by commas or
// whitespace.
type SerialSource struct {
	desc    Descriptor
	port    serial.Port
	pending []byte
	buf     []byte
	skipped int
}

// OpenSerial opens d.Address at baud 8N1.
func OpenSerial(d Descriptor, baud int) (*SerialSource, error) {
	if baud <= 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.Address, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream port %s: %w", d.Address, err)
	}
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", d.Address, err)
	}
	return &SerialSource{desc: d, port: port, buf: make([]byte, 1024)}, nil
}

func (s *SerialSource) Info() Descriptor {
	return s.desc
}

// Skipped returns the number of malformed lines dropped so far.
func (s *SerialSource) Skipped() int {
	return s.skipped
}

func (s *SerialSource) Pull(ctx context.Context, timeout time.Duration) ([]float64, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if sample, ok := s.nextLine(); ok {
			return sample, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, fault.ErrAcquisitionTimeout
		}
		// A read timeout yields n == 0 with no error
		n, err := s.port.Read(s.buf)
		if err != nil {
			return nil, fmt.Errorf("serial read from %s: %w", s.desc.Address, err)
		}
		s.pending = append(s.pending, s.buf[:n]...)
	}
}

// nextLine consumes buffered lines until one parses.
func (s *SerialSource) nextLine() ([]float64, bool) {
	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			return nil, false
		}
		line := string(s.pending[:i])
		s.pending = s.pending[i+1:]
		sample, err := ParseLine(line, s.desc.ChannelCount)
		if err != nil {
			s.skipped++
			continue
		}
		return sample, true
	}
}

func (s *SerialSource) Close() error {
	return s.port.Close()
}

// ParseLine parses one text sample. want > 0 requires exactly that many values.
// NaN and infinite values are rejected.
func ParseLine(line string, want int) ([]float64, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty line")
	}
	if want > 0 && len(fields) != want {
		return nil, fmt.Errorf("expected %d values, got %d", want, len(fields))
	}
	sample := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %d is not finite: %s", i, f)
		}
		sample[i] = v
	}
	return sample, nil
}
