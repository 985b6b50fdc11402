/*Package blanking builds digital blanking waveforms for scanned acquisition.

A blanking waveform suppresses a display or detector during defined windows
of a scan line.  The waveform is rebuilt in full from a TimingSpec whenever
any timing parameter changes; the samples themselves are immutable once
built.

Basic usage:
 ts := blanking.TimingSpec{Dur1: 2, Gap1: 31, Dur2: 10, Gap2: 31, EndState: true}
 budget := blanking.MaxSamplesPerPeriod(1e6, 7910, true)
 wf, err := blanking.Build(ts, budget)
 if err != nil {
 	log.Fatal(err)
 }
 // wf.Primary drives the monitor blanking line,
 // wf.Shadow drives the PMT blanking line
*/
package blanking

import (
	"fmt"
	"math"
)

// TimingSpec holds the run lengths of a blanking waveform in samples at the
// task sample rate.  All run lengths must be non-negative.
type TimingSpec struct {
	// Delay is the number of low samples emitted before the first pulse
	Delay int `json:"delay" yaml:"delay"`

	// Dur1 is the length of the first high pulse
	Dur1 int `json:"dur1" yaml:"dur1"`

	// Gap1 is the number of low samples after the first pulse
	Gap1 int `json:"gap1" yaml:"gap1"`

	// Dur2 is the length of the second high pulse
	Dur2 int `json:"dur2" yaml:"dur2"`

	// Gap2 is the number of low samples after the second pulse
	Gap2 int `json:"gap2" yaml:"gap2"`

	// EndState is the level of the single terminal sample, which the
	// hardware holds between triggers
	EndState bool `json:"endState" yaml:"endState"`

	// ShadowLatency shifts the shadow channel by this many samples;
	// positive values delay it relative to the primary
	ShadowLatency int `json:"shadowLatency" yaml:"shadowLatency"`

	// ShadowInvert inverts the shadow channel's levels
	ShadowInvert bool `json:"shadowInvert" yaml:"shadowInvert"`
}

// Validate rejects specs with negative run lengths
func (ts TimingSpec) Validate() error {
	runs := []int{ts.Delay, ts.Dur1, ts.Gap1, ts.Dur2, ts.Gap2}
	for _, r := range runs {
		if r < 0 {
			return fmt.Errorf("timing spec run lengths must be non-negative, got %d", r)
		}
	}
	return nil
}

// Len returns the length of the waveform the spec builds, including the
// terminal sample
func (ts TimingSpec) Len() int {
	return ts.Delay + ts.Dur1 + ts.Gap1 + ts.Dur2 + ts.Gap2 + 1
}

// Waveform is a pair of equal-length binary sample sequences.  The flags
// record policy decisions made during the build so callers and tests need
// not parse log text.
type Waveform struct {
	// Primary is the monitor blanking sequence
	Primary []uint8

	// Shadow is the companion (PMT) blanking sequence.  Always the same
	// length as Primary.
	Shadow []uint8

	// Truncated is true if the sequences were cut to the trigger period budget
	Truncated bool

	// ShadowForced is true if the shadow had to be resized to match the
	// primary's length after applying the latency offset
	ShadowForced bool
}

// MaxSamplesPerPeriod returns the number of samples available between
// trigger edges.  scannerHz is the resonant scanner frequency; bidi selects
// bidirectional line acquisition, in which case one trigger arrives per half
// period.  The result is 0 if either rate is non-positive, which disables
// truncation.
func MaxSamplesPerPeriod(sampleRate, scannerHz float64, bidi bool) int {
	if sampleRate <= 0 || scannerHz <= 0 {
		return 0
	}
	period := 1 / scannerHz
	if bidi {
		period /= 2
	}
	return int(math.Floor(sampleRate * period))
}

// Build constructs the waveform pair from a spec.  maxSamples is the trigger
// period budget from MaxSamplesPerPeriod; a waveform longer than the budget
// is truncated to exactly the budget and flagged, because playback must
// never spill past the next trigger edge.  maxSamples <= 0 disables the
// budget.
func Build(ts TimingSpec, maxSamples int) (Waveform, error) {
	var wf Waveform
	if err := ts.Validate(); err != nil {
		return wf, err
	}
	primary := make([]uint8, 0, ts.Len())
	primary = appendRun(primary, 0, ts.Delay)
	primary = appendRun(primary, 1, ts.Dur1)
	primary = appendRun(primary, 0, ts.Gap1)
	primary = appendRun(primary, 1, ts.Dur2)
	primary = appendRun(primary, 0, ts.Gap2)
	if ts.EndState {
		primary = append(primary, 1)
	} else {
		primary = append(primary, 0)
	}

	if maxSamples > 0 && len(primary) > maxSamples {
		primary = primary[:maxSamples]
		wf.Truncated = true
	}

	shadow := shift(primary, ts.ShadowLatency)
	if len(shadow) != len(primary) {
		// the latency offset left the channels with ragged lengths;
		// force the shadow to match rather than arm the device with
		// unequal buffers
		shadow = resize(shadow, len(primary))
		wf.ShadowForced = true
	}
	if ts.ShadowInvert {
		for i := range shadow {
			shadow[i] ^= 1
		}
	}

	wf.Primary = primary
	wf.Shadow = shadow
	return wf, nil
}

// appendRun extends buf with n copies of level
func appendRun(buf []uint8, level uint8, n int) []uint8 {
	for i := 0; i < n; i++ {
		buf = append(buf, level)
	}
	return buf
}

// shift delays (n > 0) the sequence by prepending n low samples, or
// advances (n < 0) it by dropping the first n samples.  A nonzero shift
// changes the length; Build reconciles that against the primary.
func shift(seq []uint8, n int) []uint8 {
	if n == 0 {
		out := make([]uint8, len(seq))
		copy(out, seq)
		return out
	}
	if n > 0 {
		out := make([]uint8, 0, len(seq)+n)
		out = appendRun(out, 0, n)
		return append(out, seq...)
	}
	n = -n
	if n > len(seq) {
		n = len(seq)
	}
	out := make([]uint8, 0, len(seq)-n)
	return append(out, seq[n:]...)
}

// resize pads with the final sample or cuts so that len(seq) == n
func resize(seq []uint8, n int) []uint8 {
	if len(seq) >= n {
		return seq[:n]
	}
	last := uint8(0)
	if len(seq) > 0 {
		last = seq[len(seq)-1]
	}
	return appendRun(seq, last, n-len(seq))
}
