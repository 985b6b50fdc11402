package vdaq

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	msgs := [][]byte{
		{kPing},
		{kWaveformStart},
		{kWaveformLoad, 0x02, 0x4B, 0x00, 0x00, 0x00},
		// payload containing every byte that requires escaping
		{kTriggerLine, 0x0A, 0x0D, 0x5E, 0x41},
	}
	for _, msg := range msgs {
		f := frame(msg)
		if f[0] != telStart {
			t.Errorf("frame does not begin with start byte, got %#x", f[0])
		}
		got, err := unframe(f)
		if err != nil {
			t.Fatalf("unframe returned %v", err)
		}
		if !bytes.Equal(got, msg) {
			t.Errorf("round trip mangled message: sent %v got %v", msg, got)
		}
	}
}

func TestFrameEscapesReservedBytes(t *testing.T) {
	f := frame([]byte{kTriggerLine, 0x0A, 0x0D})
	// past the start byte, neither reserved byte may appear raw
	for i, b := range f[1:] {
		if b == telEnd || b == telStart {
			t.Errorf("reserved byte %#x appears unescaped at offset %d", b, i+1)
		}
	}
}

func TestUnframeRejectsBadStart(t *testing.T) {
	f := frame([]byte{kPing})
	f[0] = 0x00
	_, err := unframe(f)
	if !errors.Is(err, ErrBadFrame) {
		t.Errorf("expected ErrBadFrame, got %v", err)
	}
}

func TestUnframeRejectsCorruption(t *testing.T) {
	f := frame([]byte{kWaveformLoad, 0x01, 0x02, 0x03})
	f[2] ^= 0xFF
	_, err := unframe(f)
	if !errors.Is(err, ErrBadCRC) {
		t.Errorf("expected ErrBadCRC, got %v", err)
	}
}

func TestUnframeTooShort(t *testing.T) {
	_, err := unframe([]byte{telStart})
	if !errors.Is(err, ErrBadFrame) {
		t.Errorf("expected ErrBadFrame on truncated frame, got %v", err)
	}
}

func TestDecodeBlock(t *testing.T) {
	// 2 channels, 2 samples, values 1, -2, 256, -300
	data := []byte{
		0x02,
		0x02, 0x00,
		0x01, 0x00,
		0xFE, 0xFF,
		0x00, 0x01,
		0xD4, 0xFE,
	}
	blk, err := decodeBlock(data)
	if err != nil {
		t.Fatalf("decodeBlock returned %v", err)
	}
	if blk.Channels != 2 {
		t.Errorf("expected 2 channels, got %d", blk.Channels)
	}
	want := []int16{1, -2, 256, -300}
	for i, v := range want {
		if blk.Data[i] != v {
			t.Errorf("sample %d: expected %d, got %d", i, v, blk.Data[i])
		}
	}
}

func TestDecodeBlockShapeMismatch(t *testing.T) {
	_, err := decodeBlock([]byte{0x02, 0x02, 0x00, 0x01, 0x00})
	if err == nil {
		t.Error("expected error on short payload, got nil")
	}
}
