// Package actuator provides the byte transports that carry control commands
// to the car.
package actuator

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"

	"eyedrive/internal/fault"
)

// Modes accepted by Open.
const (
	ModeSerial = "serial"
	ModeDryRun = "dry-run"
)

// Config selects and configures the transport.
type Config struct {
	Mode        string        `mapstructure:"mode" yaml:"mode"`                 // "serial" or "dry-run"
	Port        string        `mapstructure:"port" yaml:"port"`                 // Serial device path
	BaudRate    int           `mapstructure:"baud_rate" yaml:"baud_rate"`       // Serial baud rate
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"` // Wait after open for the board to reset
}

// DefaultConfig returns a dry-run transport so nothing moves until a port is
// configured.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeDryRun,
		Port:        "/dev/ttyUSB0",
		BaudRate:    9600,
		SettleDelay: 2 * time.Second,
	}
}

// Validate checks the transport settings.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeDryRun:
		return nil
	case ModeSerial:
		if c.Port == "" {
			return fault.Configf("actuator port not specified for serial mode")
		}
		if c.BaudRate <= 0 {
			return fault.Configf("invalid actuator baud rate %d", c.BaudRate)
		}
		return nil
	default:
		return fault.Configf("invalid actuator mode: %s (must be '%s' or '%s')", c.Mode, ModeSerial, ModeDryRun)
	}
}

// Transport is a write-only command channel.
type Transport interface {
	io.Writer
	io.Closer
}

// Open creates the transport described by cfg.
func Open(cfg Config, logger *slog.Logger) (Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Mode == ModeDryRun {
		logger.Info("actuator in dry-run mode, commands are only logged")
		return &DryRun{logger: logger}, nil
	}
	return OpenSerial(cfg, logger)
}

// Serial writes commands to a serial port.
type Serial struct {
	port   serial.Port
	name   string
	logger *slog.Logger
}

// OpenSerial opens the configured port at 8N1.
func OpenSerial(cfg Config, logger *slog.Logger) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open actuator port %s: %w", cfg.Port, err)
	}

	// Opening the port resets most microcontroller boards
	if cfg.SettleDelay > 0 {
		logger.Info("waiting for actuator board to settle", "port", cfg.Port, "delay", cfg.SettleDelay)
		time.Sleep(cfg.SettleDelay)
	}

	logger.Info("actuator port open", "port", cfg.Port, "baud", cfg.BaudRate)
	return &Serial{port: port, name: cfg.Port, logger: logger}, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial write to %s: %w", s.name, err)
	}
	s.logger.Debug("actuator write", "port", s.name, "bytes", fmt.Sprintf("%q", p))
	return n, nil
}

func (s *Serial) Close() error {
	return s.port.Close()
}

// DryRun logs commands instead of sending them.
type DryRun struct {
	logger *slog.Logger
	count  int
}

func (d *DryRun) Write(p []byte) (int, error) {
	d.count++
	d.logger.Info("dry-run actuator write", "seq", d.count, "bytes", fmt.Sprintf("%q", p))
	return len(p), nil
}

func (d *DryRun) Close() error {
	return nil
}

// Ports lists serial ports visible to the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
