// Package stream adapts multi-channel sample sources to the pull interface the
// acquisition layer consumes.
//
// A source is described by a Descriptor and opened into an Inlet. Sources are
// configured up front and listed by a Registry, which plays the part of
// network stream discovery.
package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eyedrive/internal/fault"
)

// Source kinds understood by the registry.
const (
	KindSynthetic = "synthetic"
	KindSerial    = "serial"
	KindWebSocket = "websocket"
	KindReplay    = "replay"
)

// Descriptor identifies a source and advertises its fixed format.
type Descriptor struct {
	Name         string
	Type         string // Content type, e.g. "EEG"
	SourceID     string
	Kind         string
	Address      string // Port, URL or file path depending on Kind
	ChannelCount int
	SampleRate   float64 // Nominal rate in Hz
	Manufacturer string
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %d ch @ %g Hz, %s)", d.Name, d.Type, d.ChannelCount, d.SampleRate, d.Kind)
}

// Inlet is a connected source. Pull returns one sample vector; timeout <= 0
// blocks until a sample arrives or the source ends (io.EOF). A pull that sees
// nothing within timeout returns fault.ErrAcquisitionTimeout.
type Inlet interface {
	Info() Descriptor
	Pull(ctx context.Context, timeout time.Duration) ([]float64, error)
	Close() error
}

// Resolver lists and connects sources.
type Resolver interface {
	Resolve(ctx context.Context, typeFilter string) ([]Descriptor, error)
	Connect(ctx context.Context, d Descriptor) (Inlet, error)
}

// SourceConfig configures one source in the registry.
type SourceConfig struct {
	Name         string          `mapstructure:"name" yaml:"name"`
	Type         string          `mapstructure:"type" yaml:"type"`
	SourceID     string          `mapstructure:"source_id" yaml:"source_id"`
	Kind         string          `mapstructure:"kind" yaml:"kind"`       // synthetic, serial, websocket, replay
	Address      string          `mapstructure:"address" yaml:"address"` // Port, ws:// URL or recording path
	SampleRate   float64         `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels     int             `mapstructure:"channels" yaml:"channels"`
	BaudRate     int             `mapstructure:"baud_rate" yaml:"baud_rate"` // Serial only
	Manufacturer string          `mapstructure:"manufacturer" yaml:"manufacturer"`
	Realtime     bool            `mapstructure:"realtime" yaml:"realtime"` // Pace synthetic and replay sources
	Synthetic    SyntheticConfig `mapstructure:"synthetic" yaml:"synthetic"`
}

// Descriptor converts the configuration to the advertised descriptor.
func (c SourceConfig) Descriptor() Descriptor {
	id := c.SourceID
	if id == "" {
		id = c.Kind + ":" + c.Name
	}
	return Descriptor{
		Name:         c.Name,
		Type:         c.Type,
		SourceID:     id,
		Kind:         c.Kind,
		Address:      c.Address,
		ChannelCount: c.Channels,
		SampleRate:   c.SampleRate,
		Manufacturer: c.Manufacturer,
	}
}

// Validate checks the fields every kind needs.
func (c SourceConfig) Validate() error {
	if c.Name == "" {
		return fault.Configf("stream source without a name")
	}
	switch c.Kind {
	case KindSynthetic, KindReplay:
	case KindSerial, KindWebSocket:
		if c.Address == "" {
			return fault.Configf("stream source %s: address required for kind %s", c.Name, c.Kind)
		}
	default:
		return fault.Configf("stream source %s: unknown kind %q", c.Name, c.Kind)
	}
	if c.Kind == KindReplay && c.Address == "" {
		return fault.Configf("stream source %s: replay needs a recording path", c.Name)
	}
	if c.Kind != KindReplay {
		if c.Channels <= 0 {
			return fault.Configf("stream source %s: invalid channel count %d", c.Name, c.Channels)
		}
		if c.SampleRate <= 0 {
			return fault.Configf("stream source %s: invalid sample rate %g", c.Name, c.SampleRate)
		}
	}
	return nil
}

// Registry is a Resolver over configured sources.
type Registry struct {
	sources []SourceConfig
}

// NewRegistry validates sources and returns a registry over them.
func NewRegistry(sources []SourceConfig) (*Registry, error) {
	for _, s := range sources {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return &Registry{sources: append([]SourceConfig(nil), sources...)}, nil
}

// Resolve lists sources whose type matches typeFilter (case-insensitive).
// An empty filter lists everything. Replay sources report the format stored
// in their recording.
func (r *Registry) Resolve(ctx context.Context, typeFilter string) ([]Descriptor, error) {
	var out []Descriptor
	for _, s := range r.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := s.Descriptor()
		if s.Kind == KindReplay {
			rd, err := replayDescriptor(s)
			if err != nil {
				return nil, err
			}
			d = rd
		}
		if typeFilter != "" && !strings.EqualFold(d.Type, typeFilter) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Connect opens the source behind d.
func (r *Registry) Connect(ctx context.Context, d Descriptor) (Inlet, error) {
	for _, s := range r.sources {
		if s.Descriptor().SourceID != d.SourceID {
			continue
		}
		switch s.Kind {
		case KindSynthetic:
			return NewSynthetic(d, s.Synthetic, s.Realtime), nil
		case KindSerial:
			return OpenSerial(d, s.BaudRate)
		case KindWebSocket:
			return DialWebSocket(ctx, d)
		case KindReplay:
			return OpenReplay(d, s.Realtime)
		}
	}
	return nil, fmt.Errorf("no configured source with id %q", d.SourceID)
}

// Select picks the descriptor called name, or the first one when name is
// empty or no descriptor carries it.
func Select(descs []Descriptor, name string) (Descriptor, bool) {
	if len(descs) == 0 {
		return Descriptor{}, false
	}
	for _, d := range descs {
		if d.Name == name {
			return d, true
		}
	}
	return descs[0], true
}
