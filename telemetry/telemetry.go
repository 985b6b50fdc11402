/*Package telemetry exports bridge activity to observability backends.

Metrics feeds prometheus counters and gauges; Publisher mirrors bridge
events onto an MQTT broker for lab dashboards.  Both hang off the bridge as
listeners, so the acquisition path carries no instrumentation of its own.
*/
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jlarkin/scanaux/bridge"
	"github.com/jlarkin/scanaux/daq"
)

// Metrics counts bridge activity for prometheus.  It satisfies
// bridge.Listener.
type Metrics struct {
	blocks      prometheus.Counter
	samples     prometheus.Counter
	bytes       prometheus.Counter
	transitions *prometheus.CounterVec
	sessions    prometheus.Gauge
}

// NewMetrics builds and registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanaux_blocks_total",
			Help: "Captured data blocks delivered by the backend.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanaux_samples_total",
			Help: "Captured samples per channel delivered by the backend.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanaux_bytes_total",
			Help: "Raw bytes represented by delivered blocks.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanaux_state_transitions_total",
			Help: "Engine state transitions observed by the bridge.",
		}, []string{"state"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanaux_open_sessions",
			Help: "Recorder sessions currently open.",
		}),
	}
	reg.MustRegister(m.blocks, m.samples, m.bytes, m.transitions, m.sessions)
	return m
}

// StateChanged counts the transition by destination state
func (m *Metrics) StateChanged(s bridge.State) {
	m.transitions.WithLabelValues(bridge.FormatState(s)).Inc()
}

// SessionOpened raises the open session gauge
func (m *Metrics) SessionOpened(path string) {
	m.sessions.Inc()
}

// SessionClosed lowers the open session gauge
func (m *Metrics) SessionClosed(path string) {
	m.sessions.Dec()
}

// SampleBlock counts the block, its samples, and its raw size
func (m *Metrics) SampleBlock(b daq.Block) {
	m.blocks.Inc()
	m.samples.Add(float64(b.Samples()))
	m.bytes.Add(float64(len(b.Data) * 2))
}
