package playback

import (
	"errors"
	"testing"

	"github.com/jlarkin/scanaux/blanking"
	"github.com/jlarkin/scanaux/daq"
)

// fakeTask records the order of hardware calls
type fakeTask struct {
	calls  []string
	loaded [][]uint8
	line   string
	edge   string
}

func (f *fakeTask) ConfigureWaveform(channels [][]uint8) error {
	f.calls = append(f.calls, "configure")
	f.loaded = channels
	return nil
}

func (f *fakeTask) StartWaveform() error {
	f.calls = append(f.calls, "start")
	return nil
}

func (f *fakeTask) StopWaveform() error {
	f.calls = append(f.calls, "stop")
	return nil
}

func (f *fakeTask) ClearWaveform() error {
	f.calls = append(f.calls, "clear")
	f.loaded = nil
	return nil
}

func (f *fakeTask) SetTriggerLine(line string) error {
	f.line = line
	return nil
}

func (f *fakeTask) GetTriggerLine() (string, error) {
	return f.line, nil
}

func (f *fakeTask) SetTriggerEdge(edge string) error {
	f.edge = edge
	return nil
}

func (f *fakeTask) GetTriggerEdge() (string, error) {
	return f.edge, nil
}

func spec() blanking.TimingSpec {
	return blanking.TimingSpec{Dur1: 2, Gap1: 31, Dur2: 10, Gap2: 31, EndState: true}
}

func newPlayback(f *fakeTask) *Playback {
	// 1 MHz out, no sample budget
	return New(f, 1e6, 0, false)
}

func TestConfigureIsIdempotencyGuarded(t *testing.T) {
	f := &fakeTask{}
	p := newPlayback(f)
	if err := p.Configure(spec()); err != nil {
		t.Fatalf("configure returned %v", err)
	}
	err := p.Configure(spec())
	if !errors.Is(err, daq.ErrTaskConfigured) {
		t.Errorf("second configure: expected ErrTaskConfigured, got %v", err)
	}
	if err := p.Clear(); err != nil {
		t.Fatalf("clear returned %v", err)
	}
	if err := p.Configure(spec()); err != nil {
		t.Errorf("configure after clear returned %v", err)
	}
}

func TestConfigureLoadsBothChannels(t *testing.T) {
	f := &fakeTask{}
	p := newPlayback(f)
	if err := p.Configure(spec()); err != nil {
		t.Fatalf("configure returned %v", err)
	}
	if len(f.loaded) != 2 {
		t.Fatalf("expected 2 channels loaded, got %d", len(f.loaded))
	}
	want := spec().Len()
	if len(f.loaded[0]) != want || len(f.loaded[1]) != want {
		t.Errorf("expected both channels %d samples, got %d and %d",
			want, len(f.loaded[0]), len(f.loaded[1]))
	}
}

func TestConfigureSurfacesBuildResult(t *testing.T) {
	f := &fakeTask{}
	// 1 MHz out, 10 kHz bidirectional scanner: 50 samples per trigger,
	// which truncates the 75 sample build
	p := New(f, 1e6, 10e3, true)
	if err := p.Configure(spec()); err != nil {
		t.Fatalf("configure returned %v", err)
	}
	wf := p.Waveform()
	if !wf.Truncated {
		t.Error("expected the truncation flag to surface through Waveform")
	}
	if len(wf.Primary) != 50 || len(wf.Shadow) != 50 {
		t.Errorf("expected 50 samples per channel, got %d and %d",
			len(wf.Primary), len(wf.Shadow))
	}
	if len(f.loaded) != 2 {
		t.Fatalf("expected 2 channels loaded, got %d", len(f.loaded))
	}
	if len(f.loaded[0]) != 50 {
		t.Errorf("hardware was loaded with %d samples, want 50", len(f.loaded[0]))
	}
}

func TestStartRequiresConfigure(t *testing.T) {
	f := &fakeTask{}
	p := newPlayback(f)
	err := p.Start()
	if !errors.Is(err, daq.ErrTaskNotConfigured) {
		t.Errorf("expected ErrTaskNotConfigured, got %v", err)
	}
}

func TestApplyWhileRunningCyclesHardwareOnce(t *testing.T) {
	f := &fakeTask{}
	p := newPlayback(f)
	if err := p.Configure(spec()); err != nil {
		t.Fatalf("configure returned %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("start returned %v", err)
	}
	f.calls = nil

	s := spec()
	s.Delay = 5
	if err := p.Stage(s); err != nil {
		t.Fatalf("stage returned %v", err)
	}
	// staging alone must not touch hardware
	if len(f.calls) != 0 {
		t.Fatalf("stage touched hardware: %v", f.calls)
	}
	if err := p.Apply(); err != nil {
		t.Fatalf("apply returned %v", err)
	}
	want := []string{"stop", "clear", "configure", "start"}
	if len(f.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, f.calls)
	}
	for i := range want {
		if f.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, f.calls)
		}
	}
	if p.Timing().Delay != 5 {
		t.Errorf("committed spec not updated, delay=%d", p.Timing().Delay)
	}
	if _, staged := p.Pending(); staged {
		t.Error("pending spec should be consumed by apply")
	}
}

func TestApplyWhileStoppedDoesNotArm(t *testing.T) {
	f := &fakeTask{}
	p := newPlayback(f)
	if err := p.Configure(spec()); err != nil {
		t.Fatalf("configure returned %v", err)
	}
	f.calls = nil
	if err := p.Rebuild(spec()); err != nil {
		t.Fatalf("rebuild returned %v", err)
	}
	for _, c := range f.calls {
		if c == "start" {
			t.Errorf("rebuild armed a task that was not running: %v", f.calls)
		}
	}
	if p.Running() {
		t.Error("playback reports running after rebuild from stopped")
	}
}

func TestApplyWithNothingStagedIsANoOp(t *testing.T) {
	f := &fakeTask{}
	p := newPlayback(f)
	if err := p.Apply(); err != nil {
		t.Fatalf("apply returned %v", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("apply with nothing staged touched hardware: %v", f.calls)
	}
}

func TestStageRejectsInvalidSpec(t *testing.T) {
	f := &fakeTask{}
	p := newPlayback(f)
	bad := spec()
	bad.Dur1 = -1
	if err := p.Stage(bad); err == nil {
		t.Error("expected error staging negative run length, got nil")
	}
}
