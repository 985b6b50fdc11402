/*Package bridge ties the acquisition engine's state machine to capture and
logging.

The engine (the microscope control software) owns state transitions; the
bridge only reacts to them.  Entering Grab or Loop opens a recorder session
named from the engine's log stem and counter, when logging is enabled, and
starts the analog capture.  Focus captures without logging.  Idle stops the
capture.  Interested parties subscribe a Listener and receive typed events
on the notifying goroutine.
*/
package bridge

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jlarkin/scanaux/daq"
	"github.com/jlarkin/scanaux/recorder"
)

// State is one acquisition state of the engine
type State int

const (
	// Idle means no acquisition is in progress
	Idle State = iota

	// Focus is a live acquisition that is never logged
	Focus

	// Grab is a finite logged acquisition
	Grab

	// Loop is a repeating logged acquisition
	Loop
)

// ValidateState ensures that a state name is valid.
// s is a member of {idle, focus, grab, loop}
func ValidateState(s string) (State, error) {
	switch s {
	case "idle":
		return Idle, nil
	case "focus":
		return Focus, nil
	case "grab":
		return Grab, nil
	case "loop":
		return Loop, nil
	default:
		return -1, fmt.Errorf("state must be a member of {idle, focus, grab, loop}")
	}
}

// FormatState converts a state to a string representation,
// which is a member of {idle, focus, grab, loop}
func FormatState(s State) string {
	switch s {
	case Idle:
		return "idle"
	case Focus:
		return "focus"
	case Grab:
		return "grab"
	case Loop:
		return "loop"
	default:
		return ""
	}
}

// Logged reports whether sessions opened in this state are written to disk
func (s State) Logged() bool {
	return s == Grab || s == Loop
}

// Engine is the source of acquisition configuration.  The bridge reads it at
// each transition; implementations decide whether values are static or live.
type Engine interface {
	// LoggingEnabled reports whether logged states should write to disk
	LoggingEnabled() bool

	// LogFileDir is the directory logged data lands in
	LogFileDir() string

	// LogFileStem is the base name of logged data files
	LogFileStem() string

	// LogFileCounter returns the acquisition counter used in file names
	// and advances it
	LogFileCounter() int

	// TriggerLine names the line that paces the playback task
	TriggerLine() string

	// ScannerFrequency is the scanner line rate in Hz
	ScannerFrequency() float64
}

// Listener receives bridge events.  Methods run synchronously on the
// goroutine that produced the event and must not call back into the bridge.
type Listener interface {
	// StateChanged fires after the bridge adopts a new state
	StateChanged(s State)

	// SessionOpened fires after a recorder session is created
	SessionOpened(path string)

	// SessionClosed fires after a recorder session is flushed and closed
	SessionClosed(path string)

	// SampleBlock fires for every captured block, logged or not
	SampleBlock(b daq.Block)
}

// Bridge reacts to engine state transitions.  All methods are goroutine safe.
type Bridge struct {
	mu   sync.Mutex
	task daq.AnalogCapturer
	eng  Engine

	// meta is the sidecar template; SourceFile and SessionID are
	// filled per session
	meta recorder.Metadata

	listeners []Listener

	state       State
	session     *recorder.Session
	sessionPath string
	configured  bool
	capturing   bool
	torndown    bool
	lastErr     error
}

// New returns a Bridge in the Idle state.  meta supplies the capture channel
// list, sample rate, and sidecar fields for logged sessions.
func New(task daq.AnalogCapturer, eng Engine, meta recorder.Metadata) *Bridge {
	b := &Bridge{task: task, eng: eng, meta: meta}
	task.OnBlock(b.onBlock)
	task.OnCaptureError(b.onCaptureError)
	return b
}

// Subscribe registers l for bridge events
func (b *Bridge) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// State returns the current acquisition state
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SessionPath returns the path of the open session, empty if none
func (b *Bridge) SessionPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionPath
}

// Err returns the capture error that tore the bridge down, if any
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Notify informs the bridge that the engine entered state s.  The bridge
// never initiates transitions itself.
func (b *Bridge) Notify(s State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastErr != nil {
		return b.lastErr
	}
	if b.torndown {
		return fmt.Errorf("bridge is torn down")
	}

	var err error
	switch s {
	case Grab, Loop:
		b.closeSession()
		if b.eng.LoggingEnabled() {
			err = b.openSession()
			if err != nil {
				break
			}
		}
		err = b.startCapture()
	case Focus:
		b.closeSession()
		err = b.startCapture()
	case Idle:
		b.closeSession()
		err = b.stopCapture()
	default:
		return fmt.Errorf("state must be a member of {idle, focus, grab, loop}")
	}
	if err != nil {
		return err
	}
	if s != b.state {
		b.state = s
		for _, l := range b.listeners {
			l.StateChanged(s)
		}
	}
	return nil
}

// openSession creates the next logged data file; callers hold b.mu
func (b *Bridge) openSession() error {
	name := fmt.Sprintf("%s_%05d.bin", b.eng.LogFileStem(), b.eng.LogFileCounter())
	path := filepath.Join(b.eng.LogFileDir(), name)
	s, err := recorder.Open(path, b.meta)
	if err != nil {
		return fmt.Errorf("opening log session: %w", err)
	}
	b.session = s
	b.sessionPath = path
	for _, l := range b.listeners {
		l.SessionOpened(path)
	}
	return nil
}

// closeSession flushes and closes the open session, if any; callers hold b.mu
func (b *Bridge) closeSession() {
	if b.session == nil {
		return
	}
	path := b.sessionPath
	b.session.Close()
	b.session = nil
	b.sessionPath = ""
	for _, l := range b.listeners {
		l.SessionClosed(path)
	}
}

// startCapture configures the task on first use and starts it; callers hold b.mu
func (b *Bridge) startCapture() error {
	if b.capturing {
		return nil
	}
	if !b.configured {
		err := b.task.ConfigureCapture(b.meta.ChannelIndices, b.meta.SampleRate)
		if err != nil {
			return fmt.Errorf("configuring capture: %w", err)
		}
		b.configured = true
	}
	err := b.task.StartCapture()
	if err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}
	b.capturing = true
	return nil
}

// stopCapture stops the task if running; callers hold b.mu
func (b *Bridge) stopCapture() error {
	if !b.capturing {
		return nil
	}
	err := b.task.StopCapture()
	if err != nil {
		return fmt.Errorf("stopping capture: %w", err)
	}
	b.capturing = false
	return nil
}

// onBlock is the task's per-block callback
func (b *Bridge) onBlock(blk daq.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.torndown {
		return
	}
	if b.session != nil {
		err := b.session.AppendBlock(blk)
		if err != nil {
			b.teardown(fmt.Errorf("writing block: %w", err))
			return
		}
	}
	for _, l := range b.listeners {
		l.SampleBlock(blk)
	}
}

// onCaptureError is the task's runtime error callback.  Such errors are
// fatal; the bridge stops and releases the task with no retry.
func (b *Bridge) onCaptureError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// the backend stops delivering after reporting an error; there is
	// nothing left to stop
	b.capturing = false
	b.teardown(err)
}

// teardown closes the session and frees the task; callers hold b.mu
func (b *Bridge) teardown(cause error) {
	if b.torndown {
		return
	}
	b.torndown = true
	b.lastErr = cause
	b.closeSession()
	if b.capturing {
		b.task.StopCapture()
		b.capturing = false
	}
	if r, ok := b.task.(daq.Releaser); ok {
		r.Release()
	}
	b.state = Idle
}

// Close stops the capture, closes any open session, and releases the task
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.torndown {
		return nil
	}
	b.torndown = true
	b.closeSession()
	err := b.stopCapture()
	if r, ok := b.task.(daq.Releaser); ok {
		if err2 := r.Release(); err == nil {
			err = err2
		}
	}
	b.state = Idle
	return err
}
