package monitor

import (
	"math"
	"testing"

	"github.com/jlarkin/scanaux/bridge"
	"github.com/jlarkin/scanaux/daq"
	"github.com/jlarkin/scanaux/recorder"
)

func testMeta() recorder.Metadata {
	return recorder.Metadata{
		ChannelIndices: []int{0, 1},
		ChannelNames:   []string{"pmt", "pockels"},
		VoltageRange:   [2]float64{-10, 10},
		SampleRate:     125e3,
	}
}

func TestSampleBlockFillsRings(t *testing.T) {
	m := New(testMeta(), 16)
	m.SampleBlock(daq.Block{Data: []int16{0, 100, 0, 200, 0, 300}, Channels: 2})
	chans, times := m.Recent()
	if len(chans) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(chans))
	}
	if len(chans[0]) != 3 {
		t.Errorf("expected 3 samples retained, got %d", len(chans[0]))
	}
	if len(times) != 1 {
		t.Errorf("expected 1 block timestamp, got %d", len(times))
	}
}

func TestVoltageConversion(t *testing.T) {
	m := New(testMeta(), 4)
	// DN 0 sits at mid scale, 0 V for a symmetric range
	m.SampleBlock(daq.Block{Data: []int16{0, 16384}, Channels: 2})
	chans, _ := m.Recent()
	if math.Abs(chans[0][0]) > 1e-3 {
		t.Errorf("DN 0 should be ~0 V, got %f", chans[0][0])
	}
	// 16384 DN is half of positive full scale, 5 V on a +/-10 V range
	if math.Abs(chans[1][0]-5) > 1e-2 {
		t.Errorf("DN 16384 should be ~5 V, got %f", chans[1][0])
	}
}

func TestRingWrapsAtCapacity(t *testing.T) {
	m := New(testMeta(), 4)
	for i := 0; i < 6; i++ {
		m.SampleBlock(daq.Block{Data: []int16{int16(i * 100), 0}, Channels: 2})
	}
	chans, _ := m.Recent()
	if len(chans[0]) != 4 {
		t.Errorf("expected ring capped at 4 samples, got %d", len(chans[0]))
	}
}

func TestMismatchedBlockIsDropped(t *testing.T) {
	m := New(testMeta(), 4)
	m.SampleBlock(daq.Block{Data: []int16{1, 2, 3}, Channels: 3})
	chans, _ := m.Recent()
	// ringo yields a single zero for an empty buffer
	if len(chans[0]) != 1 || chans[0][0] != 0 {
		t.Errorf("mismatched block should not be mirrored, got %v", chans[0])
	}
}

func TestListenerBookkeeping(t *testing.T) {
	m := New(testMeta(), 4)
	m.StateChanged(bridge.Grab)
	m.SessionOpened("/data/run_00000.bin")
	m.mu.Lock()
	state, session := m.state, m.session
	m.mu.Unlock()
	if state != bridge.Grab {
		t.Errorf("expected grab, got %s", bridge.FormatState(state))
	}
	if session != "/data/run_00000.bin" {
		t.Errorf("unexpected session %s", session)
	}
	m.SessionClosed("/data/run_00000.bin")
	m.mu.Lock()
	session = m.session
	m.mu.Unlock()
	if session != "" {
		t.Error("session should clear on close")
	}
}
