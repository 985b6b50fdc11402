/*Package recorder logs analog sample blocks to flat binary files.

The data file carries no header; a JSON sidecar written before the first
block describes how to parse the stream back into a channels x samples
matrix.  Files are append-only and each block write goes straight to the
underlying stream.
*/
package recorder

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jlarkin/scanaux/daq"
)

const (
	// SidecarSuffix marks a metadata file accompanying a data file
	SidecarSuffix = ".meta.json"

	// sampleWidth is the width of one sample in bytes.  The logger always
	// writes little-endian int16, the native transfer size of the ADCs in
	// use.
	sampleWidth = 2
)

var (
	// ErrSessionClosed is generated when AppendBlock is called after Close
	ErrSessionClosed = errors.New("recording session is closed")

	// ErrChannelMismatch is generated when a block's channel count does
	// not match the session's
	ErrChannelMismatch = errors.New("block channel count does not match session")

	byteOrder = binary.LittleEndian
)

// Metadata is the sidecar record describing a recording.  It must exist for
// the binary file to be interpretable; the stream itself is headerless.
type Metadata struct {
	// SourceFile is the base name of the data file this record describes
	SourceFile string `json:"sourceFile"`

	// SessionID uniquely identifies the recording session
	SessionID string `json:"sessionID"`

	// SampleType names the sample encoding.  Only "int16" is produced.
	SampleType string `json:"sampleType"`

	// SampleWidth is the width of one sample in bytes
	SampleWidth int `json:"sampleWidthBytes"`

	// ChannelIndices are the hardware channel numbers, in stream order
	ChannelIndices []int `json:"channelIndices"`

	// ChannelNames are display names parallel to ChannelIndices
	ChannelNames []string `json:"channelNames"`

	// VoltageRange is the [low, high] input range in volts
	VoltageRange [2]float64 `json:"voltageRange"`

	// SampleRate is the per-channel sample rate in Hz
	SampleRate float64 `json:"sampleRate"`

	// PlotRange is a [low, high] display hint for plotting clients
	PlotRange [2]float64 `json:"plotRange"`
}

// Channels returns the number of channels in the stream
func (m Metadata) Channels() int {
	return len(m.ChannelIndices)
}

// SidecarPath derives the metadata path for a data file by the fixed naming
// convention: the extension is replaced with SidecarSuffix
func SidecarPath(dataPath string) string {
	ext := filepath.Ext(dataPath)
	return strings.TrimSuffix(dataPath, ext) + SidecarSuffix
}

// Session is an open recording.  At most one file is open per session
// object; it is not concurrent safe, matching the single event goroutine
// that feeds it.
type Session struct {
	meta   Metadata
	f      *os.File
	closed bool

	// Blocks and Bytes count what has been appended so far
	Blocks int
	Bytes  int
}

// Open creates the data file at path and writes the sidecar before
// returning, so the recording is interpretable from the first block onward.
// The SourceFile, SessionID, SampleType, and SampleWidth fields of meta are
// populated here; callers fill in the rest.
func Open(path string, meta Metadata) (*Session, error) {
	if meta.Channels() == 0 {
		return nil, fmt.Errorf("recording requires at least one channel")
	}
	if len(meta.ChannelNames) != meta.Channels() {
		return nil, fmt.Errorf("channel names (%d) do not pair with channel indices (%d)",
			len(meta.ChannelNames), meta.Channels())
	}
	meta.SourceFile = filepath.Base(path)
	meta.SessionID = uuid.New().String()
	meta.SampleType = "int16"
	meta.SampleWidth = sampleWidth

	sf, err := os.Create(SidecarPath(path))
	if err != nil {
		return nil, err
	}
	err = json.NewEncoder(sf).Encode(meta)
	if err2 := sf.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Session{meta: meta, f: f}, nil
}

// Meta returns the session's metadata record as written to the sidecar
func (s *Session) Meta() Metadata {
	return s.meta
}

// Path returns the path of the open data file
func (s *Session) Path() string {
	return s.f.Name()
}

// AppendBlock writes one block to the data file, channel-major within each
// sample.  The write is direct; there are no buffering or batching
// guarantees beyond the underlying stream's.
func (s *Session) AppendBlock(b daq.Block) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if b.Channels != s.meta.Channels() {
		return ErrChannelMismatch
	}
	err := binary.Write(s.f, byteOrder, b.Data)
	if err != nil {
		return err
	}
	s.Blocks++
	s.Bytes += len(b.Data) * sampleWidth
	return nil
}

// Close flushes and closes the data file.  Appending after Close is an
// error; closing twice is too.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// Recording is a recording read back from disk
type Recording struct {
	// Meta is the sidecar record.  Zero-valued if the sidecar was missing.
	Meta Metadata

	// Data is the channels x samples matrix.  Nil if the sidecar was
	// missing.
	Data [][]int16

	// Flat is the raw sample stream in file order.  Always populated.
	Flat []int16

	// MissingSidecar is true if the sidecar could not be found, in which
	// case only Flat is meaningful
	MissingSidecar bool
}

// Read loads a recording from disk.  A missing sidecar degrades gracefully:
// the raw stream is returned flat with the MissingSidecar flag raised
// instead of an error, because the samples are still recoverable even if
// their shape is not.
func Read(path string) (Recording, error) {
	var rec Recording
	raw, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if len(raw)%sampleWidth != 0 {
		return rec, fmt.Errorf("data file %s has odd length %d, not a whole number of samples", path, len(raw))
	}
	n := len(raw) / sampleWidth
	rec.Flat = make([]int16, n)
	for i := 0; i < n; i++ {
		rec.Flat[i] = int16(byteOrder.Uint16(raw[i*sampleWidth:]))
	}

	mf, err := os.Open(SidecarPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			rec.MissingSidecar = true
			return rec, nil
		}
		return rec, err
	}
	defer mf.Close()
	err = json.NewDecoder(mf).Decode(&rec.Meta)
	if err != nil {
		return rec, fmt.Errorf("corrupt sidecar for %s: %w", path, err)
	}

	chans := rec.Meta.Channels()
	if chans == 0 {
		return rec, fmt.Errorf("sidecar for %s lists no channels", path)
	}
	if n%chans != 0 {
		return rec, fmt.Errorf("data file %s holds %d samples, not a multiple of %d channels", path, n, chans)
	}
	samples := n / chans
	rec.Data = make([][]int16, chans)
	for c := 0; c < chans; c++ {
		rec.Data[c] = make([]int16, samples)
	}
	for k := 0; k < samples; k++ {
		for c := 0; c < chans; c++ {
			rec.Data[c][k] = rec.Flat[k*chans+c]
		}
	}
	return rec, nil
}
