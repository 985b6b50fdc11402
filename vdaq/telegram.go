package vdaq

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/snksoft/crc"
)

// telegrams are encoded as [SOT][MESSAGE][CRC][EOT].
// the message is formatted as
// [KIND] [CHANNEL] [0..N data bytes]
// and the two CRC bytes cover KIND through the end of the data.
// SOT, the CRC, and any data bytes that collide with framing characters are
// escaped before transmission.

const (
	// telStart is the start of telegram byte
	telStart = 0x0D

	// telEnd is the end of telegram byte, shared with the comm terminator
	telEnd = 0x0A

	// escapeChar marks an escaped byte; the original is recovered by
	// subtracting escapeShift from the byte that follows
	escapeChar = 0x5E

	// escapeShift is the amount special characters are shifted up.
	// special characters max out at 0x5E, so we will never overflow
	escapeShift = 0x40
)

var (
	// dataOrder is the byte order of multi-byte fields
	dataOrder = binary.LittleEndian

	// specialChars is a byte slice of values that must be escaped out of messages
	specialChars = []byte{telEnd, telStart, escapeChar}

	crcTable = crc.NewTable(crc.XMODEM)

	// ErrBadFrame is generated when a telegram does not begin with the start byte
	ErrBadFrame = errors.New("telegram does not begin with the start of telegram byte")

	// ErrBadCRC is generated when a telegram fails its integrity check
	ErrBadCRC = errors.New("telegram CRC mismatch")
)

// crcBytes computes the two CRC bytes for a raw (unescaped) message
func crcBytes(msg []byte) []byte {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, msg)
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, crcTable.CRC16(c))
	return out
}

func isSpecial(b byte) bool {
	for _, s := range specialChars {
		if b == s {
			return true
		}
	}
	return false
}

// escape replaces framing characters in buf with two-byte escape sequences
func escape(buf []byte) []byte {
	out := make([]byte, 0, len(buf))
	for _, b := range buf {
		if isSpecial(b) {
			out = append(out, escapeChar, b+escapeShift)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// unescape reverses escape.  An escape character at the end of the buffer is
// malformed.
func unescape(buf []byte) ([]byte, error) {
	out := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if b == escapeChar {
			i++
			if i == len(buf) {
				return nil, fmt.Errorf("dangling escape character at end of telegram")
			}
			out = append(out, buf[i]-escapeShift)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// frame wraps a raw message for the wire: start byte, escaped message and
// CRC.  The end of telegram byte is appended by the comm layer.
func frame(msg []byte) []byte {
	body := append(escape(msg), escape(crcBytes(msg))...)
	out := make([]byte, 0, len(body)+1)
	out = append(out, telStart)
	return append(out, body...)
}

// unframe validates and strips the framing from a received telegram,
// returning the raw message
func unframe(buf []byte) ([]byte, error) {
	if len(buf) == 0 || buf[0] != telStart {
		return nil, ErrBadFrame
	}
	body, err := unescape(buf[1:])
	if err != nil {
		return nil, err
	}
	if len(body) < 2 {
		return nil, fmt.Errorf("telegram too short to carry a CRC: %w", ErrBadFrame)
	}
	msg, sum := body[:len(body)-2], body[len(body)-2:]
	want := crcBytes(msg)
	if sum[0] != want[0] || sum[1] != want[1] {
		return nil, ErrBadCRC
	}
	return msg, nil
}
