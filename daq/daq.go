/*Package daq describes a standard set of interfaces for data acquisition tasks.

The interfaces here are hardware agnostic: a backend may be a networked DAQ
chassis (package vdaq) or an in-memory simulator (package sim).  Consumers
should accept the narrowest interface that covers their needs and type assert
up the ladder for optional capabilities, in the same manner used for cameras
and DACs elsewhere in the lab software.
*/
package daq

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskConfigured is generated when Configure is called on a task
	// that already holds a configured hardware buffer
	ErrTaskConfigured = errors.New("task is already configured; stop and clear it first")

	// ErrTaskNotConfigured is generated when Start is called before Configure
	ErrTaskNotConfigured = errors.New("task is not configured")

	// ErrNotRunning is generated when Stop is called on a task that is not running
	ErrNotRunning = errors.New("task is not running")

	// ErrShapeMismatch is generated when a block's data length is not an
	// integer multiple of its channel count
	ErrShapeMismatch = errors.New("block length is not a multiple of the channel count")
)

// Edge is the polarity of a digital trigger edge
type Edge int

const (
	// Rising triggers on a low to high transition
	Rising Edge = iota

	// Falling triggers on a high to low transition
	Falling
)

// ValidateEdge ensures that an edge polarity is valid.
// s is a member of {rising, falling}
func ValidateEdge(s string) (Edge, error) {
	switch s {
	case "rising":
		return Rising, nil
	case "falling":
		return Falling, nil
	default:
		return -1, fmt.Errorf("edge polarity must be a member of {rising, falling}")
	}
}

// FormatEdge converts an edge polarity to a string representation,
// which is a member of {rising, falling}
func FormatEdge(e Edge) string {
	switch e {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return ""
	}
}

// Block is one chunk of captured analog data.  Data is flat with each
// sample's channels contiguous, i.e. sample k channel c lives at
// Data[k*Channels+c].
type Block struct {
	// Data holds the samples in DN
	Data []int16

	// Channels is the number of interleaved channels in Data
	Channels int
}

// Samples returns the number of samples per channel in the block
func (b Block) Samples() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Validate returns ErrShapeMismatch if the block is not rectangular
func (b Block) Validate() error {
	if b.Channels < 1 {
		return fmt.Errorf("block must have at least one channel")
	}
	if len(b.Data)%b.Channels != 0 {
		return ErrShapeMismatch
	}
	return nil
}

// DigitalOutputter writes a static level to a digital output line
type DigitalOutputter interface {
	// OutputDigital sets the level of a digital output channel
	OutputDigital(channel int, level bool) error
}

// WaveformPlayer is a task which plays a finite binary sample sequence on
// one or more digital output lines.  The buffer is finite and replayed in
// full once per qualifying trigger edge, with no host intervention between
// edges.
type WaveformPlayer interface {
	// ConfigureWaveform loads equal-length binary sample sequences, one
	// per output line.  It fails with ErrTaskConfigured if a buffer is
	// already loaded; callers must ClearWaveform first.  Most hardware
	// cannot resize an armed buffer in place.
	ConfigureWaveform(channels [][]uint8) error

	// StartWaveform arms the task; playback begins on the next trigger edge
	StartWaveform() error

	// StopWaveform disarms the task
	StopWaveform() error

	// ClearWaveform discards the loaded buffer so the task may be reconfigured
	ClearWaveform() error
}

// EdgeTriggerable is a task whose start trigger is a named external
// digital line with a configurable polarity
type EdgeTriggerable interface {
	// SetTriggerLine names the external line used to (re)start the task
	SetTriggerLine(line string) error

	// GetTriggerLine returns the external line used to (re)start the task
	GetTriggerLine() (string, error)

	// SetTriggerEdge sets the polarity, formatted as in ValidateEdge
	SetTriggerEdge(edge string) error

	// GetTriggerEdge returns the polarity, formatted as in FormatEdge
	GetTriggerEdge() (string, error)
}

// AnalogCapturer is a task which streams blocks of analog input samples to a
// registered callback.  Callbacks are invoked from the backend's event
// goroutine, never concurrently with each other.
type AnalogCapturer interface {
	// ConfigureCapture sets the channel list and sample rate
	ConfigureCapture(channels []int, sampleRate float64) error

	// OnBlock registers the per-block data-ready callback, replacing any
	// previous registration
	OnBlock(func(Block))

	// OnCaptureError registers the callback invoked when the backend
	// reports a runtime data error.  Such errors are fatal to the
	// capture; the backend stops delivering blocks after reporting one.
	OnCaptureError(func(error))

	// StartCapture begins streaming
	StartCapture() error

	// StopCapture ends streaming.  A block already in flight when it is
	// called may still be delivered; consumers must tolerate one trailing
	// callback.
	StopCapture() error
}

// Releaser frees the underlying hardware task.  Leaking the task blocks the
// device name from being reopened, so owners must call Release on teardown.
type Releaser interface {
	Release() error
}
