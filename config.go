package jls

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Compression selects the transparent chunk payload compression applied to
// bulk data and summary chunks. The choice is recorded per chunk, so readers
// need no configuration.
type Compression int

const (
	// CompressionNone stores payloads verbatim.
	CompressionNone Compression = iota
	// CompressionSnappy compresses payloads with snappy, falling back to
	// verbatim storage when compression does not shrink the payload.
	CompressionSnappy
)

// Config defines writer configuration.
type Config struct {
	// Compression is applied to data and summary chunk payloads.
	// Default: CompressionNone.
	Compression Compression

	// RingSize is the bounded staging ring depth of a StagedWriter, in
	// commands. Appends block when the ring is full. Default: 1024.
	RingSize int
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionNone,
		RingSize:    1024,
	}
}

func (c *Config) validate() error {
	if c.Compression < CompressionNone || c.Compression > CompressionSnappy {
		return defErrorf("invalid compression %d", c.Compression)
	}
	if c.RingSize < 0 {
		return defErrorf("invalid ring size %d", c.RingSize)
	}
	return nil
}

// ringSize returns the configured staging depth, defaulted.
func (c *Config) ringSize() int {
	if c.RingSize == 0 {
		return 1024
	}
	return c.RingSize
}

// CaptureConfig is a declarative recording topology: the sources and
// signals to define, typically loaded from YAML and applied with
// Writer.ApplyCaptureConfig.
type CaptureConfig struct {
	Sources []SourceDef `yaml:"sources"`
	Signals []SignalDef `yaml:"signals"`
}

// LoadCaptureConfig reads a YAML capture configuration from path.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCaptureConfig(data)
}

// ParseCaptureConfig parses a YAML capture configuration.
func ParseCaptureConfig(data []byte) (*CaptureConfig, error) {
	var cc CaptureConfig
	if err := yaml.Unmarshal(data, &cc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDefinition, err)
	}
	return &cc, nil
}

// MarshalYAML encodes a DataType as its name, e.g. "f32".
func (d DataType) MarshalYAML() (any, error) {
	if !d.valid() {
		return nil, defErrorf("invalid data type %d", uint8(d))
	}
	return d.String(), nil
}

// UnmarshalYAML decodes a DataType from its name.
func (d *DataType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dt, err := parseDataType(s)
	if err != nil {
		return err
	}
	*d = dt
	return nil
}

// MarshalYAML encodes a SignalType as "fsr" or "vsr".
func (t SignalType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// UnmarshalYAML decodes a SignalType from "fsr" or "vsr". An empty value
// defaults to FSR.
func (t *SignalType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "", "fsr":
		*t = SignalTypeFSR
	case "vsr":
		*t = SignalTypeVSR
	default:
		return defErrorf("unknown signal type %q", s)
	}
	return nil
}
