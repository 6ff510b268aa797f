package recording

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.eyerec")
	started := time.Date(2025, 6, 1, 12, 0, 0, 1234, time.UTC)

	w, err := Create(path, Header{
		SampleRate: 128,
		Channels:   3,
		Started:    started,
		Name:       "Cygnus-081015-RawEEG",
		SourceID:   "cygnus-1",
		SessionID:  "abc",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Extra values beyond the channel count are dropped
	samples := [][]float64{
		{1, 2, 3, 99},
		{-0.5, 0.25, 0},
		{10, 20, 30},
	}
	for _, s := range samples {
		if err := w.WriteSample(s); err != nil {
			t.Fatalf("WriteSample failed: %v", err)
		}
	}
	if err := w.WriteSample([]float64{1}); err == nil {
		t.Error("short sample should be rejected")
	}
	if w.Samples() != 3 {
		t.Errorf("expected 3 samples written, got %d", w.Samples())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	h := r.Header()
	if h.SampleRate != 128 || h.Channels != 3 || h.Name != "Cygnus-081015-RawEEG" || h.SessionID != "abc" {
		t.Errorf("unexpected header %+v", h)
	}
	if !h.Started.Equal(started) {
		t.Errorf("expected start %v, got %v", started, h.Started)
	}

	data, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	want := [][]float64{{1, -0.5, 10}, {2, 0.25, 20}, {3, 0, 30}}
	for ch := range want {
		for i := range want[ch] {
			if data[ch][i] != want[ch][i] {
				t.Errorf("channel %d sample %d: expected %v, got %v", ch, i, want[ch][i], data[ch][i])
			}
		}
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after the last sample, got %v", err)
	}
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.dat")
	if err := os.WriteFile(path, []byte("ARGUS\x01\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestCreateValidatesHeader(t *testing.T) {
	dir := t.TempDir()
	if _, err := Create(filepath.Join(dir, "a"), Header{SampleRate: 128}); err == nil {
		t.Error("zero channels should be rejected")
	}
	if _, err := Create(filepath.Join(dir, "b"), Header{Channels: 2}); err == nil {
		t.Error("zero sample rate should be rejected")
	}
}
