package recorder

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Settings is the named subset of recording configuration that users save
// and restore between sessions, independent of any open recording
type Settings struct {
	// ChannelIndices are the hardware channel numbers to record
	ChannelIndices []int `yaml:"channels"`

	// ChannelNames are display names parallel to ChannelIndices
	ChannelNames []string `yaml:"names"`

	// SampleRate is the per-channel sample rate in Hz
	SampleRate float64 `yaml:"sampleRate"`

	// VoltageRange is the [low, high] input range in volts
	VoltageRange [2]float64 `yaml:"voltageRange"`

	// PlotRange is a [low, high] display hint for plotting clients
	PlotRange [2]float64 `yaml:"plotRange"`
}

// Apply copies the settings onto a metadata record, leaving the session
// bookkeeping fields alone
func (s Settings) Apply(m *Metadata) {
	m.ChannelIndices = s.ChannelIndices
	m.ChannelNames = s.ChannelNames
	m.SampleRate = s.SampleRate
	m.VoltageRange = s.VoltageRange
	m.PlotRange = s.PlotRange
}

// FromMetadata extracts the persistable subset of a metadata record
func FromMetadata(m Metadata) Settings {
	return Settings{
		ChannelIndices: m.ChannelIndices,
		ChannelNames:   m.ChannelNames,
		SampleRate:     m.SampleRate,
		VoltageRange:   m.VoltageRange,
		PlotRange:      m.PlotRange,
	}
}

// SaveSettings writes the settings to a YAML file at path
func SaveSettings(path string, s Settings) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return yaml.NewEncoder(f).Encode(s)
}

// LoadSettings reads settings from a YAML file at path
func LoadSettings(path string) (Settings, error) {
	var s Settings
	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&s)
	return s, err
}
