package bridge

import "sync"

// StaticEngine is an Engine backed by plain fields, for configuration-driven
// deployments where the engine values do not change during a run.  The
// acquisition counter advances on every read, so consecutive logged
// acquisitions get consecutive file names.
type StaticEngine struct {
	mu sync.Mutex

	// Logging enables disk logging in Grab and Loop
	Logging bool

	// Dir is the directory logged data lands in
	Dir string

	// Stem is the base name of logged data files
	Stem string

	// Counter is the next acquisition number
	Counter int

	// Trigger names the playback trigger line
	Trigger string

	// ScannerHz is the scanner line rate in Hz
	ScannerHz float64
}

// LoggingEnabled reports whether logged states write to disk
func (e *StaticEngine) LoggingEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Logging
}

// LogFileDir returns the log directory
func (e *StaticEngine) LogFileDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Dir
}

// LogFileStem returns the log file base name
func (e *StaticEngine) LogFileStem() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Stem
}

// LogFileCounter returns the acquisition counter and advances it
func (e *StaticEngine) LogFileCounter() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.Counter
	e.Counter++
	return c
}

// TriggerLine returns the playback trigger line
func (e *StaticEngine) TriggerLine() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Trigger
}

// ScannerFrequency returns the scanner line rate in Hz
func (e *StaticEngine) ScannerFrequency() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ScannerHz
}

// SetLogging toggles disk logging for subsequent logged states
func (e *StaticEngine) SetLogging(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Logging = on
}
