package frametime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogPath(t *testing.T) {
	got := LogPath("/data/run_00003.bin")
	want := "/data/run_00003.frametimes.txt"
	if got != want {
		t.Errorf("LogPath = %s, want %s", got, want)
	}
}

func TestFramesWithoutSessionOnlyFillRing(t *testing.T) {
	l := New(8)
	if err := l.Frame(time.Now()); err != nil {
		t.Fatalf("Frame returned %v", err)
	}
	if l.Frames() != 1 {
		t.Errorf("expected 1 frame counted, got %d", l.Frames())
	}
	if len(l.Recent()) != 1 {
		t.Errorf("expected 1 timestamp retained, got %d", len(l.Recent()))
	}
}

func TestSessionLogReceivesLines(t *testing.T) {
	dir := t.TempDir()
	session := filepath.Join(dir, "run_00000.bin")
	l := New(8)
	l.SessionOpened(session)
	t0 := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	for i := 0; i < 3; i++ {
		if err := l.Frame(t0.Add(time.Duration(i) * 33 * time.Millisecond)); err != nil {
			t.Fatalf("Frame returned %v", err)
		}
	}
	l.SessionClosed(session)

	buf, err := os.ReadFile(LogPath(session))
	if err != nil {
		t.Fatalf("reading frame log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	got, err := time.Parse(time.RFC3339Nano, lines[0])
	if err != nil {
		t.Fatalf("first line does not parse: %v", err)
	}
	if !got.Equal(t0) {
		t.Errorf("first line = %v, want %v", got, t0)
	}
}

func TestFramesAfterCloseDoNotWrite(t *testing.T) {
	dir := t.TempDir()
	session := filepath.Join(dir, "run_00000.bin")
	l := New(8)
	l.SessionOpened(session)
	l.SessionClosed(session)
	if err := l.Frame(time.Now()); err != nil {
		t.Fatalf("Frame after close returned %v", err)
	}
	buf, err := os.ReadFile(LogPath(session))
	if err != nil {
		t.Fatalf("reading frame log: %v", err)
	}
	if len(buf) != 0 {
		t.Errorf("expected empty log after close, got %d bytes", len(buf))
	}
}

func TestRingCapacity(t *testing.T) {
	l := New(4)
	for i := 0; i < 10; i++ {
		l.Frame(time.Now())
	}
	if len(l.Recent()) != 4 {
		t.Errorf("expected ring capped at 4, got %d", len(l.Recent()))
	}
	if l.Frames() != 10 {
		t.Errorf("expected 10 frames counted, got %d", l.Frames())
	}
}
