package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jlarkin/scanaux/recorder"
	"github.com/jlarkin/scanaux/sim"
)

func TestParseChannels(t *testing.T) {
	chans, err := parseChannels("0, 3,7")
	if err != nil {
		t.Fatalf("parseChannels returned %v", err)
	}
	if len(chans) != 3 || chans[0] != 0 || chans[1] != 3 || chans[2] != 7 {
		t.Errorf("parseChannels = %v, want [0 3 7]", chans)
	}
	if _, err := parseChannels("0,two"); err == nil {
		t.Error("expected error on non-integer channel, got nil")
	}
}

func TestRecordCapturesBlocks(t *testing.T) {
	dev := sim.New()
	defer dev.Release()
	path := filepath.Join(t.TempDir(), "rec.bin")
	sess, err := recorder.Open(path, recorder.Metadata{
		ChannelIndices: []int{0, 1},
		ChannelNames:   []string{"ch0", "ch1"},
		SampleRate:     125e3,
		VoltageRange:   [2]float64{-10, 10},
	})
	if err != nil {
		t.Fatalf("Open returned %v", err)
	}
	if err := dev.ConfigureCapture([]int{0, 1}, 125e3); err != nil {
		t.Fatalf("ConfigureCapture returned %v", err)
	}
	err = record(dev, sess, 300*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("record returned %v", err)
	}
	if sess.Blocks == 0 {
		t.Fatal("no blocks were recorded")
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close returned %v", err)
	}
	rec, err := recorder.Read(path)
	if err != nil {
		t.Fatalf("Read returned %v", err)
	}
	if len(rec.Flat) != sess.Bytes/2 {
		t.Errorf("file carries %d samples, counters say %d", len(rec.Flat), sess.Bytes/2)
	}
}
