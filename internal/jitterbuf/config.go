package jitterbuf

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config configures a Buffer. It is validated and copied into the instance
// at construction time and is immutable thereafter.
type Config struct {
	// Name identifies this buffer instance in log fields and in the
	// StateEvent payload posted to EventSink.
	Name string `yaml:"name"`

	// BufferSize is the ring's capacity in bytes.
	BufferSize int `yaml:"buffer_size"`

	// FrameSize is either the fixed frame length (WithHeader false) or the
	// maximum payload length (WithHeader true). With WithHeader, a longer
	// payload is still written, and is dropped as malformed when read.
	FrameSize int `yaml:"frame_size"`

	// FrameInterval is the consumer loop's tick period. Must be > 0.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// HighWater and LowWater are frame-count thresholds. HighWater is the
	// pre-roll depth; LowWater must be <= HighWater for hysteresis.
	HighWater int `yaml:"high_water"`
	LowWater  int `yaml:"low_water"`

	// WithHeader selects the length-prefixed framer over the fixed framer.
	WithHeader bool `yaml:"with_header"`

	// OutputSilenceOnEmpty causes the consumer loop to emit a zeroed frame
	// on ticks where no real frame is available, rather than nothing.
	OutputSilenceOnEmpty bool `yaml:"output_silence_on_empty"`

	// OutputSink receives every emitted frame. Required.
	OutputSink OutputSink `yaml:"-"`

	// EventSink is optional; if nil, state transitions are not posted
	// anywhere (NoopEventSink is used internally).
	EventSink EventSink `yaml:"-"`

	// Logger is optional; if nil, a no-op logger is used.
	Logger *zap.Logger `yaml:"-"`
}

// DefaultConfig returns the reference defaults from spec.md §6.
func DefaultConfig() Config {
	return Config{
		Name:                 "jitterbuf",
		BufferSize:           11 * 1024,
		FrameSize:            512,
		FrameInterval:        20 * time.Millisecond,
		HighWater:            20,
		LowWater:             10,
		WithHeader:           false,
		OutputSilenceOnEmpty: false,
	}
}

// LoadConfig reads a YAML file into a Config seeded with DefaultConfig,
// so that files only need to set the fields they want to override.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("jitterbuf: read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("jitterbuf: parse config %q: %w", path, err)
	}
	return cfg, nil
}

// minRingSizeForHeader returns the minimum buffer_size that guarantees
// high_water frames of (2 + frame_size) bytes can ever be resident, per
// spec.md §3's with_header invariant.
func minRingSizeForHeader(highWater, frameSize int) int {
	return highWater * (2 + frameSize)
}

// validate checks the invariants spec.md §3/§4.5 require at construction,
// silently raising BufferSize when with_header needs more room (logged by
// the caller, not here, since validate has no logger of its own).
func (c *Config) validate() error {
	if c.FrameInterval <= 0 {
		return fmt.Errorf("%w: frame_interval must be > 0", ErrInvalidArgument)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("%w: frame_size must be > 0", ErrInvalidArgument)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer_size must be > 0", ErrInvalidArgument)
	}
	if c.LowWater < 0 || c.HighWater <= 0 {
		return fmt.Errorf("%w: high_water must be > 0 and low_water must be >= 0", ErrInvalidArgument)
	}
	if c.LowWater > c.HighWater {
		return fmt.Errorf("%w: low_water must be <= high_water", ErrInvalidArgument)
	}
	if c.OutputSink == nil {
		return fmt.Errorf("%w: output sink is required", ErrInvalidArgument)
	}
	if c.WithHeader {
		if min := minRingSizeForHeader(c.HighWater, c.FrameSize); c.BufferSize < min {
			c.BufferSize = min
		}
	}
	if c.Name == "" {
		c.Name = "jitterbuf"
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.EventSink == nil {
		c.EventSink = NoopEventSink{}
	}
	return nil
}
