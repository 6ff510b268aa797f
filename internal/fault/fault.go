// Package fault defines the error categories shared by the acquisition and
// classification pipeline.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid settings: filter cutoffs, channel
	// shortfalls, weight vector mismatches. Never silently corrected.
	ErrConfiguration = errors.New("configuration error")

	// ErrAcquisitionTimeout is returned by a pull that saw no sample within
	// its timeout. Callers skip the tick and keep their buffers.
	ErrAcquisitionTimeout = errors.New("acquisition timeout")
)

// Stage names used to tag errors raised inside one classification cycle.
const (
	StageAcquire  = "acquire"
	StageFilter   = "filter"
	StageSpectral = "spectral"
	StageClassify = "classify"
	StageActuate  = "actuate"
)

// StageError records which pipeline stage produced Err.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// InStage wraps err with the stage name. A nil err stays nil.
func InStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// Configf builds a configuration error with a formatted message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// StageOf returns the stage recorded on err, or "" if none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsRecoverable reports whether err only costs the current cycle. Everything
// raised inside a cycle is recoverable; callers decide what is fatal at
// startup before the first cycle runs.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrAcquisitionTimeout) || StageOf(err) != ""
}
