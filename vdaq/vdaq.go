/*Package vdaq provides a client for networked acquisition chassis speaking
the telegram protocol.

The chassis carries the digital output and analog input hardware; this
client implements the daq interfaces over a single TCP or RS232 link.
Command/response traffic and unsolicited data telegrams (capture blocks,
runtime errors) share the connection; a reader goroutine demultiplexes them
and hands blocks and runtime errors to a dispatch goroutine.  Callbacks fire
on the dispatch goroutine, never concurrently with each other, and may call
back into the client: StopCapture or Release from inside a callback does not
starve the reader of the command response.

Basic usage:
 dev, err := vdaq.New("192.168.100.40:9750", false)
 if err != nil {
 	log.Fatal(err)
 }
 defer dev.Release()
 dev.SetTriggerLine("PFI0")
 dev.SetTriggerEdge("rising")
 dev.ConfigureWaveform([][]uint8{wf.Primary, wf.Shadow})
 dev.StartWaveform()
*/
package vdaq

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jlarkin/scanaux/comm"
	"github.com/jlarkin/scanaux/daq"
)

// message kinds, client to chassis
const (
	kPing          = 0x00
	kWaveformLoad  = 0x01
	kWaveformStart = 0x02
	kWaveformStop  = 0x03
	kWaveformClear = 0x04
	kTriggerLine   = 0x05
	kTriggerEdge   = 0x06
	kCaptureCfg    = 0x07
	kCaptureStart  = 0x08
	kCaptureStop   = 0x09
	kDigitalOut    = 0x0A
	kRelease       = 0x0B
)

// message kinds, chassis to client (unsolicited)
const (
	kBlock    = 0xF0
	kRunError = 0xF1
)

// status codes returned by the chassis in the first response byte
const (
	statusOK = 0x00
)

var (
	// StatusCodes maps chassis status bytes to human readable strings
	StatusCodes = map[int]string{
		0x00: "OK",
		0x01: "ERROR",
		0x02: "BUSY",
		0x03: "BAD ARGUMENT",
		0x04: "NO SUCH CHANNEL",
		0x05: "NOT CONFIGURED",
		0x06: "ALREADY CONFIGURED",
	}

	respTimeout = 3 * time.Second
)

// enrich returns a new error decorated with the procedure called.
// if the status is OK, nil is returned.
func enrich(status byte, procedure string) error {
	if status == statusOK {
		return nil
	}
	v, ok := StatusCodes[int(status)]
	if !ok {
		return fmt.Errorf("unknown status code %#x at call to %s", status, procedure)
	}
	if v == "ALREADY CONFIGURED" {
		// surface the portable sentinel so consumers need not know
		// chassis status codes
		return daq.ErrTaskConfigured
	}
	return fmt.Errorf("%#x: %s encountered at call to %s", status, v, procedure)
}

// VDAQ is a client to one acquisition chassis.  It satisfies
// daq.WaveformPlayer, daq.EdgeTriggerable, daq.AnalogCapturer, and
// daq.Releaser.
type VDAQ struct {
	comm.RemoteDevice

	// mu guards the cached configuration and callbacks; the dispatch
	// goroutine reads the callbacks concurrently with setters
	mu sync.Mutex

	// cached configuration, pushed to the chassis on each set
	triggerLine string
	triggerEdge daq.Edge
	capChannels []int

	onBlock func(daq.Block)
	onErr   func(error)

	// cmdMu serializes command/response exchanges on the link
	cmdMu sync.Mutex

	resp   chan []byte
	events chan event
	done   chan struct{}
}

// event is one unsolicited telegram bound for a callback
type event struct {
	blk daq.Block
	err error
}

// blockCB returns the registered data callback
func (v *VDAQ) blockCB() func(daq.Block) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.onBlock
}

// errCB returns the registered error callback
func (v *VDAQ) errCB() func(error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.onErr
}

// New opens a connection to a chassis and starts the reader and dispatch
// goroutines.  serial selects RS232 over TCP.
func New(addr string, serial bool) (*VDAQ, error) {
	v := &VDAQ{
		RemoteDevice: comm.NewRemoteDevice(addr, serial),
		triggerEdge:  daq.Rising,
		resp:         make(chan []byte, 1),
		events:       make(chan event, 64),
		done:         make(chan struct{}),
	}
	err := v.Open()
	if err != nil {
		return nil, err
	}
	// the stream carries unsolicited telegrams; reads must not expire
	if c, ok := v.Conn.(net.Conn); ok {
		c.SetReadDeadline(time.Time{})
	}
	go v.reader()
	go v.dispatch()
	err = v.command(kPing, nil)
	if err != nil {
		close(v.done)
		v.Close()
		return nil, fmt.Errorf("chassis at %s did not answer ping: %w", addr, err)
	}
	return v, nil
}

// reader owns all reads on the connection, splitting command responses from
// unsolicited data telegrams.  A single buffered reader survives the whole
// session; per-read allocation would drop telegrams buffered past the
// terminator.  The reader never invokes callbacks itself, so a callback
// blocked in a command exchange cannot stall response delivery.
func (v *VDAQ) reader() {
	br := bufio.NewReader(v.Conn)
	for {
		select {
		case <-v.done:
			return
		default:
		}
		buf, err := br.ReadBytes(v.RxTerminator())
		if err != nil {
			select {
			case <-v.done:
				return
			default:
			}
			v.pushErr(fmt.Errorf("chassis link read failed: %w", err))
			return
		}
		buf = bytes.TrimSuffix(buf, []byte{v.RxTerminator()})
		msg, err := unframe(buf)
		if err != nil {
			v.pushErr(err)
			continue
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case kBlock:
			blk, err := decodeBlock(msg[1:])
			if err != nil {
				v.pushErr(err)
				continue
			}
			select {
			case v.events <- event{blk: blk}:
			default:
				// consumer stalled with a full queue; dropping
				// a data block beats stalling the reader
			}
		case kRunError:
			// a runtime error string from the chassis is fatal to
			// the capture; the chassis stops streaming after it
			v.pushErr(fmt.Errorf("chassis runtime error: %s", string(msg[1:])))
		default:
			v.resp <- msg
		}
	}
}

// pushErr queues an error for the dispatch goroutine
func (v *VDAQ) pushErr(err error) {
	select {
	case v.events <- event{err: err}:
	case <-v.done:
	}
}

// dispatch delivers unsolicited telegrams to the registered callbacks, one
// at a time in arrival order
func (v *VDAQ) dispatch() {
	for {
		select {
		case <-v.done:
			return
		case ev := <-v.events:
			if ev.err != nil {
				if cb := v.errCB(); cb != nil {
					cb(ev.err)
				}
				continue
			}
			if cb := v.blockCB(); cb != nil {
				cb(ev.blk)
			}
		}
	}
}

// decodeBlock parses an unsolicited capture telegram:
// [channels u8][samples u16][int16 x channels x samples]
func decodeBlock(data []byte) (daq.Block, error) {
	var blk daq.Block
	if len(data) < 3 {
		return blk, fmt.Errorf("capture telegram too short: %d bytes", len(data))
	}
	chans := int(data[0])
	samples := int(dataOrder.Uint16(data[1:3]))
	payload := data[3:]
	if len(payload) != chans*samples*2 {
		return blk, fmt.Errorf("capture telegram payload is %d bytes, expected %d",
			len(payload), chans*samples*2)
	}
	out := make([]int16, chans*samples)
	for i := range out {
		out[i] = int16(dataOrder.Uint16(payload[i*2:]))
	}
	return daq.Block{Data: out, Channels: chans}, nil
}

// command sends one telegram and waits for the response status.  Exchanges
// are serialized; a response that straggles in after its command timed out
// is discarded before the next send so it cannot be paired with the wrong
// command.
func (v *VDAQ) command(kind byte, data []byte) error {
	v.cmdMu.Lock()
	defer v.cmdMu.Unlock()
	select {
	case <-v.resp:
	default:
	}
	msg := append([]byte{kind}, data...)
	err := v.Send(frame(msg))
	if err != nil {
		return err
	}
	select {
	case resp := <-v.resp:
		if len(resp) == 0 {
			return fmt.Errorf("empty response from chassis")
		}
		return enrich(resp[0], procNames[kind])
	case <-time.After(respTimeout):
		return fmt.Errorf("timeout waiting for chassis response to %s", procNames[kind])
	}
}

// ConfigureWaveform loads one binary sequence per digital output line.
// the chassis rejects a load while a buffer is armed; that surfaces as
// daq.ErrTaskConfigured.
func (v *VDAQ) ConfigureWaveform(channels [][]uint8) error {
	if len(channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	n := len(channels[0])
	for _, ch := range channels[1:] {
		if len(ch) != n {
			return fmt.Errorf("waveform channels must be equal length")
		}
	}
	data := make([]byte, 0, 5+len(channels)*n)
	data = append(data, byte(len(channels)))
	var lenBytes [4]byte
	dataOrder.PutUint32(lenBytes[:], uint32(n))
	data = append(data, lenBytes[:]...)
	for _, ch := range channels {
		data = append(data, ch...)
	}
	return v.command(kWaveformLoad, data)
}

// StartWaveform arms playback; the buffer replays once per trigger edge
func (v *VDAQ) StartWaveform() error {
	return v.command(kWaveformStart, nil)
}

// StopWaveform disarms playback
func (v *VDAQ) StopWaveform() error {
	return v.command(kWaveformStop, nil)
}

// ClearWaveform discards the armed buffer so a new one may be loaded
func (v *VDAQ) ClearWaveform() error {
	return v.command(kWaveformClear, nil)
}

// SetTriggerLine names the external line that (re)starts playback
func (v *VDAQ) SetTriggerLine(line string) error {
	err := v.command(kTriggerLine, []byte(line))
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.triggerLine = line
	v.mu.Unlock()
	return nil
}

// GetTriggerLine returns the trigger line.  the error is always nil.
func (v *VDAQ) GetTriggerLine() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.triggerLine, nil
}

// SetTriggerEdge sets the trigger polarity, formatted as in daq.ValidateEdge
func (v *VDAQ) SetTriggerEdge(edge string) error {
	e, err := daq.ValidateEdge(edge)
	if err != nil {
		return err
	}
	err = v.command(kTriggerEdge, []byte{byte(e)})
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.triggerEdge = e
	v.mu.Unlock()
	return nil
}

// GetTriggerEdge returns the trigger polarity.  the error is always nil.
func (v *VDAQ) GetTriggerEdge() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return daq.FormatEdge(v.triggerEdge), nil
}

// ConfigureCapture sets the analog input channel list and sample rate
func (v *VDAQ) ConfigureCapture(channels []int, sampleRate float64) error {
	data := make([]byte, 0, 9+len(channels))
	data = append(data, byte(len(channels)))
	for _, ch := range channels {
		data = append(data, byte(ch))
	}
	var rateBytes [8]byte
	dataOrder.PutUint64(rateBytes[:], uint64(sampleRate*1000)) // mHz resolution
	data = append(data, rateBytes[:]...)
	err := v.command(kCaptureCfg, data)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.capChannels = channels
	v.mu.Unlock()
	return nil
}

// OnBlock registers the per-block data-ready callback
func (v *VDAQ) OnBlock(cb func(daq.Block)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onBlock = cb
}

// OnCaptureError registers the runtime error callback
func (v *VDAQ) OnCaptureError(cb func(error)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onErr = cb
}

// StartCapture begins streaming capture telegrams
func (v *VDAQ) StartCapture() error {
	return v.command(kCaptureStart, nil)
}

// StopCapture ends streaming
func (v *VDAQ) StopCapture() error {
	return v.command(kCaptureStop, nil)
}

// OutputDigital sets the static level of a digital output channel
func (v *VDAQ) OutputDigital(channel int, level bool) error {
	lvl := byte(0)
	if level {
		lvl = 1
	}
	return v.command(kDigitalOut, []byte{byte(channel), lvl})
}

// Release frees the hardware task on the chassis and closes the link.
// Skipping this leaks the task and blocks the device from being reopened.
func (v *VDAQ) Release() error {
	err := v.command(kRelease, nil)
	close(v.done)
	if err2 := v.Close(); err == nil {
		err = err2
	}
	return err
}

// procNames label commands in error messages produced by enrich
var procNames = map[byte]string{
	kPing:          "Ping",
	kWaveformLoad:  "WaveformLoad",
	kWaveformStart: "WaveformStart",
	kWaveformStop:  "WaveformStop",
	kWaveformClear: "WaveformClear",
	kTriggerLine:   "TriggerLine",
	kTriggerEdge:   "TriggerEdge",
	kCaptureCfg:    "CaptureConfig",
	kCaptureStart:  "CaptureStart",
	kCaptureStop:   "CaptureStop",
	kDigitalOut:    "DigitalOut",
	kRelease:       "Release",
}
