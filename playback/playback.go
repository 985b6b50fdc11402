/*Package playback drives a retriggerable digital waveform task.

A Playback owns a hardware task (vdaq chassis or simulator) and a blanking
timing specification.  The built waveform replays once per qualifying edge
on the configured trigger line, so the scanner's line clock paces playback
with no host intervention.

Reconfiguration is batched: callers stage a new timing spec with Stage and
commit it with Apply, which performs a single stop, rewrite, restart cycle
under a mutex.  The hardware is never left armed with a stale buffer.
*/
package playback

import (
	"sync"

	"github.com/jlarkin/scanaux/blanking"
	"github.com/jlarkin/scanaux/daq"
)

// Task is the slice of hardware capability playback requires
type Task interface {
	daq.WaveformPlayer
	daq.EdgeTriggerable
}

// Playback binds a timing spec to a hardware waveform task.
// All methods are goroutine safe.
type Playback struct {
	mu   sync.Mutex
	task Task

	sampleRate float64
	scannerHz  float64
	bidi       bool

	current    blanking.TimingSpec
	pending    *blanking.TimingSpec
	wf         blanking.Waveform
	configured bool
	running    bool
}

// New returns a Playback over task.  sampleRate is the output rate of the
// task in Hz; scannerHz and bidi set the per-trigger sample budget.
func New(task Task, sampleRate, scannerHz float64, bidi bool) *Playback {
	return &Playback{
		task:       task,
		sampleRate: sampleRate,
		scannerHz:  scannerHz,
		bidi:       bidi,
	}
}

// Configure builds the waveform for ts and loads it into the task.  A
// second Configure without an intervening Clear fails with
// daq.ErrTaskConfigured.
func (p *Playback) Configure(ts blanking.TimingSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.configured {
		return daq.ErrTaskConfigured
	}
	return p.configure(ts)
}

// configure loads ts; callers hold p.mu
func (p *Playback) configure(ts blanking.TimingSpec) error {
	if err := ts.Validate(); err != nil {
		return err
	}
	budget := blanking.MaxSamplesPerPeriod(p.sampleRate, p.scannerHz, p.bidi)
	wf, err := blanking.Build(ts, budget)
	if err != nil {
		return err
	}
	err = p.task.ConfigureWaveform([][]uint8{wf.Primary, wf.Shadow})
	if err != nil {
		return err
	}
	p.current = ts
	p.wf = wf
	p.configured = true
	return nil
}

// Clear discards the loaded buffer so Configure may be called again
func (p *Playback) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return daq.ErrTaskNotConfigured
	}
	err := p.task.ClearWaveform()
	if err != nil {
		return err
	}
	p.configured = false
	p.running = false
	return nil
}

// Start arms the task; playback begins on the next trigger edge
func (p *Playback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return daq.ErrTaskNotConfigured
	}
	err := p.task.StartWaveform()
	if err != nil {
		return err
	}
	p.running = true
	return nil
}

// Stop disarms the task
func (p *Playback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return daq.ErrNotRunning
	}
	err := p.task.StopWaveform()
	if err != nil {
		return err
	}
	p.running = false
	return nil
}

// Stage records ts as the pending timing spec without touching hardware
func (p *Playback) Stage(ts blanking.TimingSpec) error {
	if err := ts.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = &ts
	return nil
}

// Pending returns the staged spec and whether one is staged
func (p *Playback) Pending() (blanking.TimingSpec, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return blanking.TimingSpec{}, false
	}
	return *p.pending, true
}

// Apply commits the staged spec in one stop, rewrite, restart cycle.  If the
// task was armed before Apply it is re-armed after; if nothing is staged
// Apply is a no-op.
func (p *Playback) Apply() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return nil
	}
	ts := *p.pending
	err := p.rebuild(ts)
	if err != nil {
		return err
	}
	p.pending = nil
	return nil
}

// Rebuild is Stage followed by Apply as one synchronous call
func (p *Playback) Rebuild(ts blanking.TimingSpec) error {
	if err := ts.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebuild(ts)
}

// rebuild swaps the hardware buffer for ts; callers hold p.mu
func (p *Playback) rebuild(ts blanking.TimingSpec) error {
	wasRunning := p.running
	if p.running {
		if err := p.task.StopWaveform(); err != nil {
			return err
		}
		p.running = false
	}
	if p.configured {
		if err := p.task.ClearWaveform(); err != nil {
			return err
		}
		p.configured = false
	}
	if err := p.configure(ts); err != nil {
		return err
	}
	if wasRunning {
		if err := p.task.StartWaveform(); err != nil {
			return err
		}
		p.running = true
	}
	return nil
}

// SetScanGeometry updates the scanner line rate and scan direction used to
// compute the sample budget.  It takes effect at the next Apply or Rebuild.
func (p *Playback) SetScanGeometry(scannerHz float64, bidi bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scannerHz = scannerHz
	p.bidi = bidi
}

// Timing returns the last committed timing spec
func (p *Playback) Timing() blanking.TimingSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Waveform returns the last built waveform, including warning flags
func (p *Playback) Waveform() blanking.Waveform {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wf
}

// Running reports whether the task is armed
func (p *Playback) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// SetTriggerLine forwards to the task
func (p *Playback) SetTriggerLine(line string) error {
	return p.task.SetTriggerLine(line)
}

// GetTriggerLine forwards to the task
func (p *Playback) GetTriggerLine() (string, error) {
	return p.task.GetTriggerLine()
}

// SetTriggerEdge forwards to the task
func (p *Playback) SetTriggerEdge(edge string) error {
	return p.task.SetTriggerEdge(edge)
}

// GetTriggerEdge forwards to the task
func (p *Playback) GetTriggerEdge() (string, error) {
	return p.task.GetTriggerEdge()
}
