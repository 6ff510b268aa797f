// Package config provides configuration structures and defaults for eyedrive
package config

import (
	"fmt"
	"strings"
	"time"

	"eyedrive/internal/actuator"
	"eyedrive/internal/classifier"
	"eyedrive/internal/control"
	"eyedrive/internal/fault"
	"eyedrive/internal/filter"
	"eyedrive/internal/spectral"
	"eyedrive/internal/stream"
)

// Config represents the complete application configuration
type Config struct {
	Stream      StreamConfig      `mapstructure:"stream" yaml:"stream"`           // Source discovery and selection
	Acquisition AcquisitionConfig `mapstructure:"acquisition" yaml:"acquisition"` // Epoch timing
	Filter      filter.Params     `mapstructure:"filter" yaml:"filter"`           // Band-pass ahead of the PSD
	Spectral    spectral.Options  `mapstructure:"spectral" yaml:"spectral"`       // Band ratio settings
	Classifier  classifier.Policy `mapstructure:"classifier" yaml:"classifier"`   // Voting policy
	Control     ControlConfig     `mapstructure:"control" yaml:"control"`         // Code to command table
	Actuator    actuator.Config   `mapstructure:"actuator" yaml:"actuator"`       // Command transport
	Recording   RecordingConfig   `mapstructure:"recording" yaml:"recording"`     // Raw stream recording
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`         // Logging configuration
}

// StreamConfig selects the source the session connects to
type StreamConfig struct {
	Name       string                `mapstructure:"name" yaml:"name"`               // Preferred source name, falls back to the first match
	Type       string                `mapstructure:"type" yaml:"type"`               // Content type filter
	Channels   int                   `mapstructure:"channels" yaml:"channels"`       // Channels used per epoch
	SampleRate float64               `mapstructure:"sample_rate" yaml:"sample_rate"` // Override of the advertised rate, 0 = use the source's
	Sources    []stream.SourceConfig `mapstructure:"sources" yaml:"sources"`         // Known sources
}

// AcquisitionConfig contains epoch and cycle timing
type AcquisitionConfig struct {
	TrialDuration time.Duration `mapstructure:"trial_duration" yaml:"trial_duration"` // Epoch length of one duty cycle phase
	Window        time.Duration `mapstructure:"window" yaml:"window"`                 // Epoch length in rolling mode
	PullTimeout   time.Duration `mapstructure:"pull_timeout" yaml:"pull_timeout"`     // Rolling pull timeout
	Hop           time.Duration `mapstructure:"hop" yaml:"hop"`                       // New data between rolling cycles
	PhaseGap      time.Duration `mapstructure:"phase_gap" yaml:"phase_gap"`           // Countdown between the two phases
	Cooldown      time.Duration `mapstructure:"cooldown" yaml:"cooldown"`             // Pause after actuation
	Cycles        int           `mapstructure:"cycles" yaml:"cycles"`                 // Duty cycles to run, 0 = until stopped
}

// ActionConfig is one entry of the control table
type ActionConfig struct {
	Command string        `mapstructure:"command" yaml:"command"` // Single command byte, e.g. "F"
	Hold    time.Duration `mapstructure:"hold" yaml:"hold"`       // Time before stop is sent
}

// ControlConfig maps control codes to actuator commands
type ControlConfig struct {
	Table   map[string]ActionConfig `mapstructure:"table" yaml:"table"`     // Code ("00".."11") to action
	Default ActionConfig            `mapstructure:"default" yaml:"default"` // Action for codes missing from the table
	Stop    string                  `mapstructure:"stop" yaml:"stop"`       // Command that ends every action
}

// RecordingConfig controls raw stream recording
type RecordingConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // Recording file, empty = disabled
}

// LoggingConfig contains logging configuration parameters
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // Log level (debug, info, warn, error)
	Format string `mapstructure:"format" yaml:"format"` // Handler format (text, json)
	File   string `mapstructure:"file" yaml:"file"`     // Log file path, empty = stderr
}

// DefaultConfig returns a configuration with sensible default values
func DefaultConfig() *Config {
	headset := stream.SourceConfig{
		Name:         "Cygnus-081015-RawEEG", // Headset stream name used by the default setup
		Type:         "EEG",
		Kind:         stream.KindSynthetic,
		SampleRate:   128,
		Channels:     14,
		Manufacturer: "synthetic",
		Realtime:     true,
		Synthetic:    stream.DefaultSyntheticConfig(),
	}

	return &Config{
		Stream: StreamConfig{
			Name:       headset.Name,
			Type:       "EEG",
			Channels:   14,                             // Emotiv-style 14 channel layout
			SampleRate: 0,                              // Use the advertised rate
			Sources:    []stream.SourceConfig{headset}, // Synthetic headset until a real one is configured
		},
		Acquisition: AcquisitionConfig{
			TrialDuration: 8 * time.Second, // One phase of the duty cycle
			Window:        8 * time.Second, // Rolling epoch length
			PullTimeout:   time.Second,     // Skip a tick after one silent second
			Hop:           time.Second,     // Classify once per second of new data
			PhaseGap:      3 * time.Second, // Countdown between phases
			Cooldown:      5 * time.Second, // Rest after each command
			Cycles:        0,               // Run until interrupted
		},
		Filter:     filter.DefaultParams(),
		Spectral:   spectral.DefaultOptions(),
		Classifier: classifier.DefaultPolicy(),
		Control:    DefaultControlConfig(),
		Actuator:   actuator.DefaultConfig(),
		Recording: RecordingConfig{
			Path: "", // Recording disabled by default
		},
		Logging: LoggingConfig{
			Level:  "info", // Info level logging
			Format: "text", // Human readable
			File:   "",     // Log to stderr
		},
	}
}

// DefaultControlConfig renders control.DefaultTable as configuration
func DefaultControlConfig() ControlConfig {
	table := make(map[string]ActionConfig)
	for code, a := range control.DefaultTable() {
		table[string(code)] = ActionConfig{Command: string(a.Command), Hold: a.Hold}
	}
	return ControlConfig{
		Table:   table,
		Default: ActionConfig{Command: string(control.CommandStop), Hold: control.DefaultHold},
		Stop:    string(control.CommandStop),
	}
}

func commandByte(field, s string) (byte, error) {
	if len(s) != 1 {
		return 0, fault.Configf("%s: command must be a single byte, got %q", field, s)
	}
	return s[0], nil
}

func (a ActionConfig) action(field string) (control.Action, error) {
	b, err := commandByte(field, a.Command)
	if err != nil {
		return control.Action{}, err
	}
	if a.Hold < 0 {
		return control.Action{}, fault.Configf("%s: negative hold %v", field, a.Hold)
	}
	return control.Action{Command: b, Hold: a.Hold}, nil
}

// MapperOptions converts the control section into mapper options
func (c ControlConfig) MapperOptions() ([]control.Option, error) {
	table := make(control.Table, len(c.Table))
	for code, ac := range c.Table {
		if len(code) != 2 || strings.Trim(code, "01") != "" {
			return nil, fault.Configf("control table: invalid code %q", code)
		}
		a, err := ac.action("control table " + code)
		if err != nil {
			return nil, err
		}
		table[control.Code(code)] = a
	}
	fallback, err := c.Default.action("control default")
	if err != nil {
		return nil, err
	}
	stop, err := commandByte("control stop", c.Stop)
	if err != nil {
		return nil, err
	}
	return []control.Option{
		control.WithTable(table),
		control.WithFallback(fallback),
		control.WithStopCommand(stop),
	}, nil
}

// Validate checks every section and returns the first problem found
func (c *Config) Validate() error {
	if c.Stream.Channels <= 0 {
		return fault.Configf("stream channels must be positive, got %d", c.Stream.Channels)
	}
	if c.Stream.SampleRate < 0 {
		return fault.Configf("invalid sample rate override %g", c.Stream.SampleRate)
	}
	if len(c.Stream.Sources) == 0 {
		return fault.Configf("no stream sources configured")
	}
	for _, s := range c.Stream.Sources {
		if err := s.Validate(); err != nil {
			return err
		}
	}

	a := c.Acquisition
	if a.TrialDuration <= 0 || a.Window <= 0 {
		return fault.Configf("trial duration and window must be positive (got %v, %v)", a.TrialDuration, a.Window)
	}
	if a.PullTimeout < 0 || a.Hop < 0 || a.PhaseGap < 0 || a.Cooldown < 0 || a.Cycles < 0 {
		return fault.Configf("acquisition timings must not be negative")
	}

	if c.Filter.HighCut <= c.Filter.LowCut || c.Filter.LowCut <= 0 {
		return fault.Configf("invalid filter band %g-%g Hz", c.Filter.LowCut, c.Filter.HighCut)
	}
	if c.Filter.Order < 0 {
		return fault.Configf("invalid filter order %d", c.Filter.Order)
	}

	if err := validateBand("spectral task", c.Spectral.Task); err != nil {
		return err
	}
	if err := validateBand("spectral reference", c.Spectral.Reference); err != nil {
		return err
	}
	if c.Spectral.Nperseg < 0 {
		return fault.Configf("invalid nperseg %d", c.Spectral.Nperseg)
	}

	if err := c.Classifier.Validate(); err != nil {
		return err
	}
	if c.Classifier.Kind == classifier.KindWeighted {
		voting := c.Stream.Channels
		if len(c.Classifier.Channels) > 0 {
			voting = len(c.Classifier.Channels)
		}
		if len(c.Classifier.Weights) != voting {
			return &classifier.ShapeMismatchError{Weights: len(c.Classifier.Weights), Channels: voting}
		}
	}
	for _, ch := range c.Classifier.Channels {
		if ch >= c.Stream.Channels {
			return fault.Configf("classifier channel %d out of range for %d channels", ch, c.Stream.Channels)
		}
	}

	if _, err := c.Control.MapperOptions(); err != nil {
		return err
	}
	if err := c.Actuator.Validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fault.Configf("invalid log format %q (must be text or json)", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

func validateBand(name string, b spectral.Band) error {
	if b.Low < 0 || b.High <= b.Low {
		return fmt.Errorf("%w: %s band %g-%g Hz", fault.ErrConfiguration, name, b.Low, b.High)
	}
	return nil
}
