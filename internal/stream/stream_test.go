package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"eyedrive/internal/fault"
	"eyedrive/internal/recording"
)

func syntheticSource(name string) SourceConfig {
	return SourceConfig{
		Name:       name,
		Type:       "EEG",
		Kind:       KindSynthetic,
		SampleRate: 128,
		Channels:   14,
		Synthetic:  DefaultSyntheticConfig(),
	}
}

func TestRegistryResolve(t *testing.T) {
	marker := syntheticSource("markers")
	marker.Type = "Markers"
	reg, err := NewRegistry([]SourceConfig{syntheticSource("headset"), marker})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	all, err := reg.Resolve(context.Background(), "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 sources, got %d (%v)", len(all), err)
	}

	eeg, err := reg.Resolve(context.Background(), "eeg")
	if err != nil {
		t.Fatal(err)
	}
	if len(eeg) != 1 || eeg[0].Name != "headset" {
		t.Fatalf("expected only the headset for type eeg, got %v", eeg)
	}
	if eeg[0].SourceID != "synthetic:headset" {
		t.Errorf("expected default source id, got %q", eeg[0].SourceID)
	}
}

func TestRegistryRejectsInvalidSource(t *testing.T) {
	cases := []SourceConfig{
		{Kind: KindSynthetic, SampleRate: 128, Channels: 1},
		{Name: "x", Kind: "lsl", SampleRate: 128, Channels: 1},
		{Name: "x", Kind: KindSerial, SampleRate: 128, Channels: 1},
		{Name: "x", Kind: KindSynthetic, SampleRate: 128},
		{Name: "x", Kind: KindSynthetic, Channels: 4},
		{Name: "x", Kind: KindReplay},
	}
	for _, c := range cases {
		if _, err := NewRegistry([]SourceConfig{c}); !errors.Is(err, fault.ErrConfiguration) {
			t.Errorf("source %+v: expected configuration error, got %v", c, err)
		}
	}
}

func TestSelect(t *testing.T) {
	descs := []Descriptor{{Name: "a"}, {Name: "b"}}

	if d, ok := Select(descs, "b"); !ok || d.Name != "b" {
		t.Errorf("expected b, got %v", d)
	}
	if d, ok := Select(descs, "missing"); !ok || d.Name != "a" {
		t.Errorf("expected fallback to first, got %v", d)
	}
	if _, ok := Select(nil, "a"); ok {
		t.Error("expected no selection from an empty list")
	}
}

func TestSyntheticDeterministic(t *testing.T) {
	reg, err := NewRegistry([]SourceConfig{syntheticSource("headset")})
	if err != nil {
		t.Fatal(err)
	}
	descs, _ := reg.Resolve(context.Background(), "EEG")

	pull := func() [][]float64 {
		in, err := reg.Connect(context.Background(), descs[0])
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer in.Close()
		var out [][]float64
		for i := 0; i < 50; i++ {
			s, err := in.Pull(context.Background(), 0)
			if err != nil {
				t.Fatalf("Pull failed: %v", err)
			}
			out = append(out, s)
		}
		return out
	}

	a, b := pull(), pull()
	for i := range a {
		if len(a[i]) != 14 {
			t.Fatalf("expected 14 channels, got %d", len(a[i]))
		}
		for ch := range a[i] {
			if a[i][ch] != b[i][ch] {
				t.Fatalf("sample %d channel %d differs between runs", i, ch)
			}
		}
	}
}

func TestSyntheticLimitAndSegments(t *testing.T) {
	d := Descriptor{Name: "s", ChannelCount: 1, SampleRate: 100}
	s := NewSynthetic(d, SyntheticConfig{
		Frequencies:     []float64{10, 20},
		SegmentDuration: time.Second,
		Amplitude:       1,
		Limit:           3,
	}, false)

	if f := s.frequency(0.5); f != 10 {
		t.Errorf("expected 10 Hz in first segment, got %v", f)
	}
	if f := s.frequency(1.5); f != 20 {
		t.Errorf("expected 20 Hz in second segment, got %v", f)
	}
	if f := s.frequency(2.5); f != 10 {
		t.Errorf("expected segments to cycle, got %v", f)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Pull(context.Background(), 0); err != nil {
			t.Fatalf("Pull %d failed: %v", i, err)
		}
	}
	if _, err := s.Pull(context.Background(), 0); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after limit, got %v", err)
	}
}

func TestSyntheticRealtimeTimeout(t *testing.T) {
	d := Descriptor{Name: "slow", ChannelCount: 1, SampleRate: 1}
	s := NewSynthetic(d, SyntheticConfig{Frequencies: []float64{1}}, true)

	if _, err := s.Pull(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("first sample should be due immediately: %v", err)
	}
	if _, err := s.Pull(context.Background(), 10*time.Millisecond); !errors.Is(err, fault.ErrAcquisitionTimeout) {
		t.Errorf("expected acquisition timeout, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Pull(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
		n    int
	}{
		{"1.5,2,3", 3, true, 3},
		{"1.5 2\t3\r", 3, true, 3},
		{"4;5", 0, true, 2},
		{"1,2", 3, false, 0},
		{"1,abc,3", 3, false, 0},
		{"nan,inf,1", 3, false, 0},
		{"1,-Inf,3", 3, false, 0},
		{"", 0, false, 0},
	}
	for _, tt := range tests {
		got, err := ParseLine(tt.line, tt.want)
		if tt.ok != (err == nil) {
			t.Errorf("ParseLine(%q): unexpected error state %v", tt.line, err)
			continue
		}
		if tt.ok && len(got) != tt.n {
			t.Errorf("ParseLine(%q): expected %d values, got %d", tt.line, tt.n, len(got))
		}
	}
}

func TestSerialSkipsCorruptLines(t *testing.T) {
	s := &SerialSource{
		desc:    Descriptor{Name: "bridge", Kind: KindSerial, ChannelCount: 3},
		pending: []byte("1,2\nNaN,2,3\n4,5,6\n7,8"),
	}
	sample, ok := s.nextLine()
	if !ok {
		t.Fatal("expected a complete line")
	}
	if sample[0] != 4 || sample[1] != 5 || sample[2] != 6 {
		t.Errorf("expected 4,5,6, got %v", sample)
	}
	if s.Skipped() != 2 {
		t.Errorf("expected 2 skipped lines, got %d", s.Skipped())
	}
	if _, ok := s.nextLine(); ok {
		t.Error("partial line should stay buffered")
	}
}

func TestSerialMissingPort(t *testing.T) {
	d := Descriptor{Name: "bridge", Kind: KindSerial, Address: "/dev/eyedrive-no-such-port", ChannelCount: 4, SampleRate: 128}
	if _, err := OpenSerial(d, 115200); err == nil {
		t.Fatal("expected error opening a missing port")
	}
}

func TestParseFrame(t *testing.T) {
	single, err := ParseFrame([]byte(`[1, 2, 3]`))
	if err != nil || len(single) != 1 || len(single[0]) != 3 {
		t.Fatalf("single sample frame: %v %v", single, err)
	}
	batch, err := ParseFrame([]byte(`{"samples": [[1, 2], [3, 4]]}`))
	if err != nil || len(batch) != 2 || batch[1][0] != 3 {
		t.Fatalf("batch frame: %v %v", batch, err)
	}
	bare, err := ParseFrame([]byte(`[[1, 2], [3, 4], [5, 6]]`))
	if err != nil || len(bare) != 3 || bare[2][1] != 6 {
		t.Fatalf("bare batch frame: %v %v", bare, err)
	}
	for _, msg := range []string{`{"samples": []}`, `[]`} {
		if _, err := ParseFrame([]byte(msg)); err == nil {
			t.Errorf("expected error for empty frame %s", msg)
		}
	}
	if _, err := ParseFrame([]byte(`hello`)); err == nil {
		t.Error("expected error for non-JSON")
	}
}

func TestWebSocketSource(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`[1, 2]`))
		conn.WriteMessage(websocket.TextMessage, []byte(`[1, 2, 3]`)) // wrong width, dropped
		conn.WriteMessage(websocket.TextMessage, []byte(`{"samples": [[3, 4], [5, 6]]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`)) // dropped
		conn.WriteMessage(websocket.TextMessage, []byte(`[[7, 8], [9, 10]]`))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// Drain until the client closes
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	d := Descriptor{
		Name:         "bridge",
		Kind:         KindWebSocket,
		Address:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		ChannelCount: 2,
		SampleRate:   128,
	}
	src, err := DialWebSocket(context.Background(), d)
	if err != nil {
		t.Fatalf("DialWebSocket failed: %v", err)
	}
	defer src.Close()

	want := []float64{1, 3, 5, 7, 9}
	for i, first := range want {
		s, err := src.Pull(context.Background(), 2*time.Second)
		if err != nil {
			t.Fatalf("Pull %d failed: %v", i, err)
		}
		if s[0] != first {
			t.Errorf("sample %d: expected first value %v, got %v", i, first, s[0])
		}
	}
	if _, err := src.Pull(context.Background(), 2*time.Second); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after the server closed, got %v", err)
	}
	if got := src.Skipped(); got != 2 {
		t.Errorf("expected 2 dropped items (wrong width, bad frame), got %d", got)
	}
}

func TestWebSocketPullTimeout(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	d := Descriptor{Name: "quiet", Address: "ws" + strings.TrimPrefix(srv.URL, "http"), ChannelCount: 2}
	src, err := DialWebSocket(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if _, err := src.Pull(context.Background(), 20*time.Millisecond); !errors.Is(err, fault.ErrAcquisitionTimeout) {
		t.Errorf("expected acquisition timeout, got %v", err)
	}
}

func TestReplaySource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trial.eyerec")
	w, err := recording.Create(path, recording.Header{SampleRate: 64, Channels: 2, Name: "recorded"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := w.WriteSample([]float64{float64(i), -float64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	reg, err := NewRegistry([]SourceConfig{{Name: "replay", Kind: KindReplay, Address: path}})
	if err != nil {
		t.Fatal(err)
	}
	descs, err := reg.Resolve(context.Background(), "EEG")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("expected the replay source, got %v", descs)
	}
	if descs[0].SampleRate != 64 || descs[0].ChannelCount != 2 {
		t.Errorf("expected format from recording, got %v", descs[0])
	}

	in, err := reg.Connect(context.Background(), descs[0])
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer in.Close()
	for i := 0; i < 5; i++ {
		s, err := in.Pull(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("Pull %d failed: %v", i, err)
		}
		if s[0] != float64(i) {
			t.Errorf("sample %d: expected %d, got %v", i, i, s[0])
		}
	}
	if _, err := in.Pull(context.Background(), time.Second); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
