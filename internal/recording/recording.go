// Package recording stores raw multi-channel sample streams so sessions can be
// replayed through the pipeline offline.
//
// File layout (little endian):
//
//	magic      "EYEREC"
//	version    uint16
//	sampleRate float64
//	channels   uint16
//	started    int64 unix seconds + int32 nanoseconds
//	name       uint8 length + bytes
//	sourceID   uint8 length + bytes
//	sessionID  uint8 length + bytes
//	samples    channels x float32 per sample until EOF
package recording

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

const (
	magic         = "EYEREC"
	formatVersion = 1
)

// ErrFormat is returned for files that are not recordings.
var ErrFormat = errors.New("invalid recording format")

// Header describes a recording.
type Header struct {
	Version    uint16
	SampleRate float64
	Channels   int
	Started    time.Time
	Name       string // Stream name
	SourceID   string
	SessionID  string
}

// Writer appends samples to a recording file.
type Writer struct {
	file     *os.File
	buf      *bufio.Writer
	header   Header
	scratch  []byte
	samples  int64
	closeErr error
	closed   bool
}

// Create writes the header of a new recording at path.
func Create(path string, h Header) (*Writer, error) {
	if h.Channels <= 0 || h.Channels > math.MaxUint16 {
		return nil, fmt.Errorf("invalid channel count %d", h.Channels)
	}
	if h.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %g", h.SampleRate)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	h.Version = formatVersion
	w := &Writer{
		file:    file,
		buf:     bufio.NewWriter(file),
		header:  h,
		scratch: make([]byte, 4*h.Channels),
	}

	if err := w.writeHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	h := w.header
	if _, err := w.buf.WriteString(magic); err != nil {
		return err
	}
	fields := []any{
		h.Version,
		h.SampleRate,
		uint16(h.Channels),
		h.Started.Unix(),
		int32(h.Started.Nanosecond()),
	}
	for _, f := range fields {
		if err := binary.Write(w.buf, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	for _, s := range []string{h.Name, h.SourceID, h.SessionID} {
		if err := writeShortString(w.buf, s); err != nil {
			return err
		}
	}
	return nil
}

func writeShortString(w io.Writer, s string) error {
	b := []byte(s)
	if len(b) > 255 {
		b = b[:255]
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// Header returns the header written for this recording.
func (w *Writer) Header() Header {
	return w.header
}

// WriteSample appends one sample. Extra values beyond the channel count are
// dropped; a short sample is an error.
func (w *Writer) WriteSample(sample []float64) error {
	if len(sample) < w.header.Channels {
		return fmt.Errorf("sample has %d values, recording has %d channels", len(sample), w.header.Channels)
	}
	for ch := 0; ch < w.header.Channels; ch++ {
		binary.LittleEndian.PutUint32(w.scratch[4*ch:], math.Float32bits(float32(sample[ch])))
	}
	if _, err := w.buf.Write(w.scratch); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	w.samples++
	return nil
}

// Samples returns the number of samples written so far.
func (w *Writer) Samples() int64 {
	return w.samples
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return w.closeErr
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		w.closeErr = fmt.Errorf("failed to flush recording: %w", err)
		return w.closeErr
	}
	w.closeErr = w.file.Close()
	return w.closeErr
}

// Reader reads samples back from a recording.
type Reader struct {
	file    *os.File
	buf     *bufio.Reader
	header  Header
	scratch []byte
}

// Open reads the header of the recording at path.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}

	r := &Reader{file: file, buf: bufio.NewReader(file)}
	if err := r.readHeader(); err != nil {
		file.Close()
		return nil, err
	}
	r.scratch = make([]byte, 4*r.header.Channels)
	return r, nil
}

func (r *Reader) readHeader() error {
	m := make([]byte, len(magic))
	if _, err := io.ReadFull(r.buf, m); err != nil {
		return fmt.Errorf("failed to read magic: %w", err)
	}
	if string(m) != magic {
		return ErrFormat
	}

	var (
		channels uint16
		unix     int64
		nanos    int32
	)
	h := &r.header
	for _, f := range []any{&h.Version, &h.SampleRate, &channels, &unix, &nanos} {
		if err := binary.Read(r.buf, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
	}
	if h.Version != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrFormat, h.Version)
	}
	if channels == 0 {
		return fmt.Errorf("%w: zero channels", ErrFormat)
	}
	h.Channels = int(channels)
	h.Started = time.Unix(unix, int64(nanos))

	for _, dst := range []*string{&h.Name, &h.SourceID, &h.SessionID} {
		s, err := readShortString(r.buf)
		if err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
		*dst = s
	}
	return nil
}

func readShortString(r io.Reader) (string, error) {
	var n uint8
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Header returns the recording header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next sample, or io.EOF at the end of the recording.
func (r *Reader) Next() ([]float64, error) {
	if _, err := io.ReadFull(r.buf, r.scratch); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated sample: %w", err)
		}
		return nil, err
	}
	sample := make([]float64, r.header.Channels)
	for ch := range sample {
		sample[ch] = float64(math.Float32frombits(binary.LittleEndian.Uint32(r.scratch[4*ch:])))
	}
	return sample, nil
}

// ReadAll returns the remaining samples with channels as the outer axis.
func (r *Reader) ReadAll() ([][]float64, error) {
	data := make([][]float64, r.header.Channels)
	for {
		sample, err := r.Next()
		if errors.Is(err, io.EOF) {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
		for ch, v := range sample {
			data[ch] = append(data[ch], v)
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
