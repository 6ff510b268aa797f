package actuator

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"eyedrive/internal/fault"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	bad := []Config{
		{Mode: "usb"},
		{Mode: ModeSerial, Port: "", BaudRate: 9600},
		{Mode: ModeSerial, Port: "/dev/ttyUSB0", BaudRate: 0},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); !errors.Is(err, fault.ErrConfiguration) {
			t.Errorf("config %+v: expected configuration error, got %v", cfg, err)
		}
	}
}

func TestOpenDryRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr, err := Open(DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tr.Close()

	n, err := tr.Write([]byte{'F'})
	if err != nil || n != 1 {
		t.Fatalf("dry-run write: n=%d err=%v", n, err)
	}
	if dr, ok := tr.(*DryRun); !ok || dr.count != 1 {
		t.Errorf("expected a DryRun transport with one write, got %T", tr)
	}
}

func TestOpenSerialMissingPort(t *testing.T) {
	cfg := Config{Mode: ModeSerial, Port: "/dev/eyedrive-does-not-exist", BaudRate: 9600}
	if _, err := Open(cfg, nil); err == nil {
		t.Fatal("expected error opening a missing port")
	}
}
