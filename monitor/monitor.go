/*Package monitor keeps a live window of recent auxiliary-input samples.

It subscribes to the bridge and mirrors every captured block into per-channel
ring buffers, converted from DN to volts using the capture metadata.  The
rings are served over HTTP as JSON for plotting clients; no history beyond
the ring capacity is kept, the recorder owns permanent storage.
*/
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/brandondube/ringo"

	"github.com/jlarkin/scanaux/bridge"
	"github.com/jlarkin/scanaux/daq"
	"github.com/jlarkin/scanaux/recorder"
	"github.com/jlarkin/scanaux/server"
)

// dnSpan is the span of an int16 DN, for scaling to a fraction of full scale
const dnSpan = 65536

// Monitor mirrors captured samples into ring buffers.  It satisfies
// bridge.Listener.  All methods are goroutine safe.
type Monitor struct {
	mu sync.Mutex

	names []string
	lo    float64
	hi    float64

	channels []ringo.CircleF64
	times    ringo.CircleTime

	state   bridge.State
	session string
}

type monitordata struct {
	Names     []string    `json:"names"`
	Channels  [][]float64 `json:"channels"`
	Timestamp []time.Time `json:"timestamp"`
	State     string      `json:"state"`
	Session   string      `json:"session"`
}

// New creates a Monitor sized for meta's channel list.  capacity is the
// number of samples retained per channel; the timestamp ring holds one entry
// per block.
func New(meta recorder.Metadata, capacity int) *Monitor {
	m := &Monitor{
		names: meta.ChannelNames,
		lo:    meta.VoltageRange[0],
		hi:    meta.VoltageRange[1],
	}
	m.channels = make([]ringo.CircleF64, meta.Channels())
	for i := range m.channels {
		m.channels[i].Init(capacity)
	}
	m.times.Init(capacity)
	return m
}

// volts converts a DN to volts within the configured input range
func (m *Monitor) volts(dn int16) float64 {
	return m.lo + (float64(dn)+dnSpan/2)/dnSpan*(m.hi-m.lo)
}

// SampleBlock mirrors a captured block into the rings
func (m *Monitor) SampleBlock(b daq.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.Channels != len(m.channels) {
		return
	}
	samples := b.Samples()
	for s := 0; s < samples; s++ {
		for c := 0; c < b.Channels; c++ {
			m.channels[c].Append(m.volts(b.Data[s*b.Channels+c]))
		}
	}
	m.times.Append(time.Now())
}

// StateChanged records the acquisition state for the plot header
func (m *Monitor) StateChanged(s bridge.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// SessionOpened records the active log file for the plot header
func (m *Monitor) SessionOpened(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = path
}

// SessionClosed clears the active log file
func (m *Monitor) SessionClosed(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = ""
}

// Recent returns the ring contents from least to most recent
func (m *Monitor) Recent() ([][]float64, []time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]float64, len(m.channels))
	for i := range m.channels {
		out[i] = m.channels[i].Contiguous()
	}
	return out, m.times.Contiguous()
}

// HTTPYield serves the ring contents as JSON
func (m *Monitor) HTTPYield(w http.ResponseWriter, r *http.Request) {
	chans, times := m.Recent()
	m.mu.Lock()
	d := monitordata{
		Names:     m.names,
		Channels:  chans,
		Timestamp: times,
		State:     bridge.FormatState(m.state),
		Session:   m.session,
	}
	m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(d)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// RT satisfies server.HTTPer
func (m *Monitor) RT() server.RouteTable {
	return server.RouteTable{
		server.MethodPath{Method: http.MethodGet, Path: "/recent"}: m.HTTPYield,
	}
}
