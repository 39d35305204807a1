// Package memory implements the memory-pressure-driven eviction engine:
// size estimation strategies, threshold-based pressure levels, and the
// Manager that tracks items, pins, and drives eviction.
package memory

import "fmt"

// Strategy selects which eviction ordering the Manager uses when it needs
// to free space.
type Strategy string

const (
	StrategyLRU  Strategy = "lru"
	StrategyLFU  Strategy = "lfu"
	StrategySize Strategy = "size"
)

// Config governs a Manager's capacity and pressure thresholds.
type Config struct {
	// MaxBytes is the tracked capacity. Nil (or a zero pointer) means
	// unlimited: pressure stays at PressureNone forever.
	MaxBytes *int64
	Moderate float64
	Critical float64
	Batch    int
	Strategy Strategy
}

// DefaultConfig returns sensible defaults: 70%/90% thresholds, an
// eviction batch of 10, and LRU ordering — unlimited capacity until
// MaxBytes is set.
func DefaultConfig() Config {
	return Config{
		Moderate: 0.7,
		Critical: 0.9,
		Batch:    10,
		Strategy: StrategyLRU,
	}
}

// Unlimited reports whether the config has no byte cap.
func (c Config) Unlimited() bool {
	return c.MaxBytes == nil
}

// Valid reports whether the threshold ordering holds: 0 <= moderate < critical <= 1.
func (c Config) Valid() bool {
	return c.Moderate >= 0 && c.Moderate < c.Critical && c.Critical <= 1
}

// Validate returns a descriptive error when Valid() is false.
func (c Config) Validate() error {
	if !c.Valid() {
		return fmt.Errorf("memory: invalid thresholds moderate=%v critical=%v, require 0 <= moderate < critical <= 1", c.Moderate, c.Critical)
	}
	if c.Batch <= 0 {
		return fmt.Errorf("memory: batch must be positive, got %d", c.Batch)
	}
	return nil
}

func maxBytes(v int64) *int64 { return &v }

// WithMaxBytes returns a copy of c capped at n bytes.
func (c Config) WithMaxBytes(n int64) Config {
	c.MaxBytes = maxBytes(n)
	return c
}
