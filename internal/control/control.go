// Package control turns two sequential eye-state decisions into a control
// code and drives the actuator with the matching command.
package control

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"eyedrive/internal/classifier"
)

// Code is the two-character concatenation of two decisions.
type Code string

const (
	CodeBothClosed Code = "00"
	CodeOpening    Code = "01"
	CodeClosing    Code = "10"
	CodeBothOpen   Code = "11"
)

// MakeCode concatenates the bits of the first and second phase decisions.
func MakeCode(first, second classifier.Decision) Code {
	return Code(first.Bit() + second.Bit())
}

// Command bytes understood by the car firmware.
const (
	CommandStop    byte = 'S'
	CommandForward byte = 'F'
	CommandLeft    byte = 'L'
	CommandRight   byte = 'R'
)

// DefaultHold is the hold time for stop and forward.
const DefaultHold = 500 * time.Millisecond

// Action is one actuator command and how long to hold it before stopping.
type Action struct {
	Command byte
	Hold    time.Duration
}

func (a Action) String() string {
	return fmt.Sprintf("%q for %v", a.Command, a.Hold)
}

// turnHold converts the 90 degree turn timing (0.2 * 90 / rate seconds).
func turnHold(rate float64) time.Duration {
	return time.Duration(0.2 * 90 / rate * float64(time.Second))
}

// Table maps control codes to actions.
type Table map[Code]Action

// DefaultTable returns the stock code table.
func DefaultTable() Table {
	return Table{
		CodeBothClosed: {Command: CommandStop, Hold: DefaultHold},
		CodeOpening:    {Command: CommandLeft, Hold: turnHold(32.5)},
		CodeClosing:    {Command: CommandRight, Hold: turnHold(35)},
		CodeBothOpen:   {Command: CommandForward, Hold: DefaultHold},
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// WallClock sleeps on a real timer.
var WallClock Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
})

// Mapper resolves codes through a table and writes commands to a transport.
type Mapper struct {
	table     Table
	fallback  Action
	stop      byte
	transport io.Writer
	sleeper   Sleeper
	logger    *slog.Logger
}

// Option customises a Mapper.
type Option func(*Mapper)

// WithTable replaces the code table.
func WithTable(t Table) Option {
	return func(m *Mapper) { m.table = t }
}

// WithFallback sets the action used for codes missing from the table.
func WithFallback(a Action) Option {
	return func(m *Mapper) { m.fallback = a }
}

// WithStopCommand sets the byte written to end every action.
func WithStopCommand(b byte) Option {
	return func(m *Mapper) { m.stop = b }
}

// WithSleeper replaces the wall clock, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(m *Mapper) { m.sleeper = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mapper) { m.logger = l }
}

// NewMapper creates a mapper writing to transport.
func NewMapper(transport io.Writer, opts ...Option) *Mapper {
	m := &Mapper{
		table:     DefaultTable(),
		fallback:  Action{Command: CommandStop, Hold: DefaultHold},
		stop:      CommandStop,
		transport: transport,
		sleeper:   WallClock,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve returns the action for code; unknown codes get the fallback stop.
func (m *Mapper) Resolve(code Code) Action {
	if a, ok := m.table[code]; ok {
		return a
	}
	return m.fallback
}

// Execute writes the command for code, holds it, then writes stop. The stop
// write happens even when the hold is cut short by ctx, and an error from it
// is reported alongside any earlier one.
func (m *Mapper) Execute(ctx context.Context, code Code) (action Action, err error) {
	action = m.Resolve(code)

	if _, werr := m.transport.Write([]byte{action.Command}); werr != nil {
		err = fmt.Errorf("failed to write command %q: %w", action.Command, werr)
	}

	defer func() {
		if _, serr := m.transport.Write([]byte{m.stop}); serr != nil {
			serr = fmt.Errorf("failed to write stop command: %w", serr)
			if err == nil {
				err = serr
			} else {
				err = fmt.Errorf("%w (and %v)", err, serr)
			}
		}
	}()

	if err != nil {
		return action, err
	}

	m.logger.Info("actuator command", "code", string(code), "command", string(action.Command), "hold", action.Hold)

	if serr := m.sleeper.Sleep(ctx, action.Hold); serr != nil {
		m.logger.Warn("hold interrupted, stopping", "code", string(code), "error", serr)
		return action, fmt.Errorf("hold for code %s interrupted: %w", code, serr)
	}
	return action, nil
}

// Stop writes a single stop command.
func (m *Mapper) Stop() error {
	if _, err := m.transport.Write([]byte{m.stop}); err != nil {
		return fmt.Errorf("failed to write stop command: %w", err)
	}
	return nil
}
