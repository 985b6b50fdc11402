package blanking

import "testing"

func TestBuildLineScanScenario(t *testing.T) {
	ts := TimingSpec{Delay: 0, Dur1: 2, Gap1: 31, Dur2: 10, Gap2: 31, EndState: true}
	wf, err := Build(ts, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(wf.Primary) != 75 {
		t.Fatalf("expected 75 samples, got %d", len(wf.Primary))
	}
	// [1x2, 0x31, 1x10, 0x31, 1]
	expect := func(idx int, v uint8) {
		if wf.Primary[idx] != v {
			t.Errorf("sample %d: expected %d got %d", idx, v, wf.Primary[idx])
		}
	}
	expect(0, 1)
	expect(1, 1)
	expect(2, 0)
	expect(32, 0)
	expect(33, 1)
	expect(42, 1)
	expect(43, 0)
	expect(73, 0)
	expect(74, 1)
}

func TestBuildLengthIsSumOfRunsPlusTerminal(t *testing.T) {
	specs := []TimingSpec{
		{},
		{Delay: 5},
		{Delay: 1, Dur1: 2, Gap1: 3, Dur2: 4, Gap2: 5},
		{Dur1: 100, Gap2: 7, EndState: true},
	}
	for _, ts := range specs {
		wf, err := Build(ts, 0)
		if err != nil {
			t.Fatal(err)
		}
		want := ts.Delay + ts.Dur1 + ts.Gap1 + ts.Dur2 + ts.Gap2 + 1
		if len(wf.Primary) != want {
			t.Errorf("spec %+v: expected length %d got %d", ts, want, len(wf.Primary))
		}
		if len(wf.Shadow) != len(wf.Primary) {
			t.Errorf("spec %+v: shadow length %d != primary length %d", ts, len(wf.Shadow), len(wf.Primary))
		}
		for i, v := range wf.Primary {
			if v != 0 && v != 1 {
				t.Errorf("spec %+v: sample %d is %d, not binary", ts, i, v)
			}
		}
	}
}

func TestBuildNegativeRunRejected(t *testing.T) {
	_, err := Build(TimingSpec{Dur1: -1}, 0)
	if err == nil {
		t.Fatal("expected an error for a negative run length")
	}
}

func TestBuildTruncatesToBudget(t *testing.T) {
	ts := TimingSpec{Dur1: 50, Gap1: 50, Dur2: 50, Gap2: 50}
	wf, err := Build(ts, 64)
	if err != nil {
		t.Fatal(err)
	}
	if !wf.Truncated {
		t.Error("expected the truncation flag to be set")
	}
	if len(wf.Primary) != 64 {
		t.Errorf("expected exactly 64 samples, got %d", len(wf.Primary))
	}
	if len(wf.Shadow) != 64 {
		t.Errorf("expected exactly 64 shadow samples, got %d", len(wf.Shadow))
	}
}

func TestBuildNoTruncationAtBudget(t *testing.T) {
	ts := TimingSpec{Dur1: 10}
	wf, err := Build(ts, 11)
	if err != nil {
		t.Fatal(err)
	}
	if wf.Truncated {
		t.Error("waveform exactly at the budget must not be flagged truncated")
	}
}

func TestShadowLatencyForcesLength(t *testing.T) {
	ts := TimingSpec{Dur1: 4, Gap1: 4, ShadowLatency: 3}
	wf, err := Build(ts, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !wf.ShadowForced {
		t.Error("expected the shadow forcing flag with a nonzero latency")
	}
	if len(wf.Shadow) != len(wf.Primary) {
		t.Fatalf("shadow length %d != primary length %d", len(wf.Shadow), len(wf.Primary))
	}
	// delayed by 3: first three shadow samples are low, then the primary's head
	for i := 0; i < 3; i++ {
		if wf.Shadow[i] != 0 {
			t.Errorf("shadow sample %d: expected 0 got %d", i, wf.Shadow[i])
		}
	}
	if wf.Shadow[3] != wf.Primary[0] {
		t.Errorf("shadow sample 3 should equal primary sample 0")
	}
}

func TestShadowInvert(t *testing.T) {
	ts := TimingSpec{Dur1: 2, EndState: true}
	wf, err := Build(ts, 0)
	if err != nil {
		t.Fatal(err)
	}
	ts.ShadowInvert = true
	wf2, err := Build(ts, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range wf.Shadow {
		if wf2.Shadow[i] == wf.Shadow[i] {
			t.Errorf("sample %d not inverted", i)
		}
	}
}

func TestMaxSamplesPerPeriod(t *testing.T) {
	// 1 MS/s against a 7910 Hz scanner, bidirectional: one trigger per
	// half period
	n := MaxSamplesPerPeriod(1e6, 7910, true)
	if n != 63 {
		t.Errorf("expected 63 samples per half period, got %d", n)
	}
	n = MaxSamplesPerPeriod(1e6, 7910, false)
	if n != 126 {
		t.Errorf("expected 126 samples per full period, got %d", n)
	}
	if MaxSamplesPerPeriod(0, 7910, true) != 0 {
		t.Error("zero sample rate should disable the budget")
	}
}
