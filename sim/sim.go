/*Package sim provides an in-memory acquisition backend.

It satisfies the same interfaces as the vdaq chassis client, so the server
can be stood up with no hardware attached.  Captured data is synthesized,
one sine per channel at a channel-dependent frequency, paced in real time
at the configured sample rate.
*/
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jlarkin/scanaux/daq"
)

// blockSamples is the number of samples per channel in each emitted block
const blockSamples = 512

// fullScale is the DN amplitude of the synthesized sines
const fullScale = 16384

// DAQ is a simulated acquisition device.  It satisfies daq.WaveformPlayer,
// daq.EdgeTriggerable, daq.AnalogCapturer, daq.DigitalOutputter, and
// daq.Releaser.  All methods are goroutine safe.
type DAQ struct {
	sync.Mutex

	// playback state
	wf      [][]uint8
	armed   bool
	trigger string
	edge    daq.Edge

	// capture state
	capChans []int
	capRate  float64
	onBlock func(daq.Block)
	onErr   func(error)
	cancel  context.CancelFunc

	// static output lines
	lines map[int]bool

	released bool
}

// New returns a fresh simulated device
func New() *DAQ {
	return &DAQ{
		trigger: "PFI0",
		lines:   make(map[int]bool),
	}
}

// ConfigureWaveform loads the binary sequences.  The sequences are held but
// never played anywhere; the simulator only models the task lifecycle.
func (d *DAQ) ConfigureWaveform(channels [][]uint8) error {
	d.Lock()
	defer d.Unlock()
	if d.wf != nil {
		return daq.ErrTaskConfigured
	}
	if len(channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	n := len(channels[0])
	for _, ch := range channels[1:] {
		if len(ch) != n {
			return fmt.Errorf("waveform channels must be equal length")
		}
	}
	d.wf = channels
	return nil
}

// StartWaveform arms the task
func (d *DAQ) StartWaveform() error {
	d.Lock()
	defer d.Unlock()
	if d.wf == nil {
		return daq.ErrTaskNotConfigured
	}
	d.armed = true
	return nil
}

// StopWaveform disarms the task
func (d *DAQ) StopWaveform() error {
	d.Lock()
	defer d.Unlock()
	if !d.armed {
		return daq.ErrNotRunning
	}
	d.armed = false
	return nil
}

// ClearWaveform discards the loaded buffer
func (d *DAQ) ClearWaveform() error {
	d.Lock()
	defer d.Unlock()
	if d.wf == nil {
		return daq.ErrTaskNotConfigured
	}
	d.wf = nil
	d.armed = false
	return nil
}

// Armed reports whether playback is armed.  Not part of any daq interface;
// it exists for tests and the simulator status endpoint.
func (d *DAQ) Armed() bool {
	d.Lock()
	defer d.Unlock()
	return d.armed
}

// SetTriggerLine names the line that restarts playback
func (d *DAQ) SetTriggerLine(line string) error {
	d.Lock()
	defer d.Unlock()
	d.trigger = line
	return nil
}

// GetTriggerLine returns the trigger line.  the error is always nil.
func (d *DAQ) GetTriggerLine() (string, error) {
	d.Lock()
	defer d.Unlock()
	return d.trigger, nil
}

// SetTriggerEdge sets the trigger polarity, formatted as in daq.ValidateEdge
func (d *DAQ) SetTriggerEdge(edge string) error {
	e, err := daq.ValidateEdge(edge)
	if err != nil {
		return err
	}
	d.Lock()
	defer d.Unlock()
	d.edge = e
	return nil
}

// GetTriggerEdge returns the trigger polarity.  the error is always nil.
func (d *DAQ) GetTriggerEdge() (string, error) {
	d.Lock()
	defer d.Unlock()
	return daq.FormatEdge(d.edge), nil
}

// ConfigureCapture sets the channel list and sample rate
func (d *DAQ) ConfigureCapture(channels []int, sampleRate float64) error {
	if len(channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	d.Lock()
	defer d.Unlock()
	if d.cancel != nil {
		return daq.ErrTaskConfigured
	}
	d.capChans = channels
	d.capRate = sampleRate
	return nil
}

// OnBlock registers the per-block data-ready callback
func (d *DAQ) OnBlock(cb func(daq.Block)) {
	d.Lock()
	defer d.Unlock()
	d.onBlock = cb
}

// OnCaptureError registers the runtime error callback
func (d *DAQ) OnCaptureError(cb func(error)) {
	d.Lock()
	defer d.Unlock()
	d.onErr = cb
}

// StartCapture begins streaming synthesized blocks
func (d *DAQ) StartCapture() error {
	d.Lock()
	defer d.Unlock()
	if d.capChans == nil {
		return daq.ErrTaskNotConfigured
	}
	if d.cancel != nil {
		return daq.ErrTaskConfigured
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.emit(ctx, len(d.capChans), d.capRate)
	return nil
}

// StopCapture ends streaming.  A block already being synthesized may still
// be delivered, matching the hardware backends.
func (d *DAQ) StopCapture() error {
	d.Lock()
	if d.cancel == nil {
		d.Unlock()
		return daq.ErrNotRunning
	}
	cancel := d.cancel
	d.cancel = nil
	d.Unlock()
	cancel()
	return nil
}

// emit synthesizes blocks in real time until the context is canceled
func (d *DAQ) emit(ctx context.Context, chans int, sampleRate float64) {
	lim := rate.NewLimiter(rate.Limit(sampleRate/blockSamples), 1)
	var k uint64
	for {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		blk := synthesize(k, chans, sampleRate)
		k += blockSamples
		d.Lock()
		cb := d.onBlock
		d.Unlock()
		select {
		case <-ctx.Done():
			return
		default:
		}
		if cb != nil {
			cb(blk)
		}
	}
}

// synthesize builds one block of sines starting at absolute sample index k.
// channel c oscillates at (c+1)*50 Hz.
func synthesize(k uint64, chans int, sampleRate float64) daq.Block {
	data := make([]int16, blockSamples*chans)
	for s := 0; s < blockSamples; s++ {
		t := float64(k+uint64(s)) / sampleRate
		for c := 0; c < chans; c++ {
			f := float64(c+1) * 50
			data[s*chans+c] = int16(fullScale * math.Sin(2*math.Pi*f*t))
		}
	}
	return daq.Block{Data: data, Channels: chans}
}

// OutputDigital sets the level of a static digital output line
func (d *DAQ) OutputDigital(channel int, level bool) error {
	d.Lock()
	defer d.Unlock()
	d.lines[channel] = level
	return nil
}

// DigitalLevel reads back a static line level; false if never set.
// Not part of any daq interface; it exists for tests.
func (d *DAQ) DigitalLevel(channel int) bool {
	d.Lock()
	defer d.Unlock()
	return d.lines[channel]
}

// Release stops any running capture and marks the device released.
// Further use is an error in real hardware; the simulator just tolerates it.
func (d *DAQ) Release() error {
	d.StopCapture()
	d.Lock()
	defer d.Unlock()
	d.wf = nil
	d.armed = false
	d.released = true
	return nil
}
