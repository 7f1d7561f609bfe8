// Package config reads the TOML configuration of the pradix driver.
//
// A configuration file has three tables, all of them optional:
//
//	[sort]
//	bits = 4
//	totalBits = 32
//	groups = 16
//	items = 16
//	histoSplit = 512
//	capacity = 4194304
//	transpose = true
//
//	[device]
//	sequential = false
//	localMemSize = 49152
//	maxWorkGroupSize = 1024
//	batches = 0
//
//	[run]
//	keys = 0
//	seed = 1
//	repeat = 1
//	verbose = false
//	dump = ""
//
// Values that are absent keep their defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/exascience/pradix/device"
	"github.com/exascience/pradix/sort"
)

// DeviceConfig configures the execution device.
type DeviceConfig struct {
	Sequential       bool `toml:"sequential"`
	LocalMemSize     int  `toml:"localMemSize"`
	MaxWorkGroupSize int  `toml:"maxWorkGroupSize"`
	Batches          int  `toml:"batches"`
}

// RunConfig configures a benchmark run of the driver.
type RunConfig struct {
	// Keys is the number of random keys to sort. 0 sorts as many keys as
	// the sorter can hold.
	Keys int `toml:"keys"`

	// Seed initializes the random key generator.
	Seed int64 `toml:"seed"`

	// Repeat is the number of times the keys are sorted.
	Repeat int `toml:"repeat"`

	Verbose bool `toml:"verbose"`

	// Dump names a file that receives the state of the sorter after the
	// last repetition. "-" selects standard output.
	Dump string `toml:"dump"`
}

// Config is the complete driver configuration.
type Config struct {
	Sort   sort.Params  `toml:"sort"`
	Device DeviceConfig `toml:"device"`
	Run    RunConfig    `toml:"run"`
}

// Default returns the configuration that is used when no file is given.
func Default() *Config {
	info := device.New().Info()
	return &Config{
		Sort: sort.DefaultParams(),
		Device: DeviceConfig{
			LocalMemSize:     info.LocalMemSize,
			MaxWorkGroupSize: info.MaxWorkGroupSize,
		},
		Run: RunConfig{
			Seed:   1,
			Repeat: 1,
		},
	}
}

// Load reads the configuration file at path on top of the defaults.
// Keys that do not belong to the configuration are an error, so that
// misspelled settings do not go unnoticed.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("unknown settings in config file %v: %v", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Sort.Validate(); err != nil {
		return err
	}
	var errs []error
	if c.Device.LocalMemSize <= 0 {
		errs = append(errs, fmt.Errorf("device.localMemSize must be positive, got %v", c.Device.LocalMemSize))
	}
	if c.Device.MaxWorkGroupSize <= 0 {
		errs = append(errs, fmt.Errorf("device.maxWorkGroupSize must be positive, got %v", c.Device.MaxWorkGroupSize))
	}
	if c.Device.Batches < 0 {
		errs = append(errs, fmt.Errorf("device.batches must not be negative, got %v", c.Device.Batches))
	}
	if c.Run.Keys < 0 || c.Run.Keys > c.Sort.Capacity {
		errs = append(errs, fmt.Errorf("run.keys must be between 0 and the capacity %v, got %v", c.Sort.Capacity, c.Run.Keys))
	}
	if c.Run.Repeat < 1 {
		errs = append(errs, fmt.Errorf("run.repeat must be at least 1, got %v", c.Run.Repeat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// DeviceOptions returns the device options that the configuration
// selects.
func (c *Config) DeviceOptions() []device.Option {
	opts := []device.Option{
		device.LocalMemSize(c.Device.LocalMemSize),
		device.MaxWorkGroupSize(c.Device.MaxWorkGroupSize),
		device.Batches(c.Device.Batches),
	}
	if c.Device.Sequential {
		opts = append(opts, device.Sequential())
	}
	return opts
}

// NumKeys returns the number of keys that a run sorts.
func (c *Config) NumKeys() int {
	if c.Run.Keys == 0 {
		return c.Sort.Capacity
	}
	return c.Run.Keys
}
