package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChunkFileExt is the extension of compiled chunk files.
const ChunkFileExt = ".lbc"

// Defaults for the executor and collector when no config file is given.
const (
	DefaultFuelPerStep  = 50000
	DefaultGCStepWork   = 16
	DefaultGCPause      = 200
	DefaultMaxCallDepth = 4096
	DefaultMaxStack     = 1 << 20
)

// GC tunes the incremental collector.
type GC struct {
	// StepWork is the number of mark/sweep work units performed per
	// allocation while a cycle is in progress.
	StepWork int `yaml:"step_work"`
	// PausePercent is the heap growth allowed before a new cycle starts,
	// as a percentage of the live count after the previous cycle.
	PausePercent int `yaml:"pause_percent"`
	// ObjectLimit caps tracked objects. 0 means unlimited.
	ObjectLimit int `yaml:"object_limit"`
}

// Config is the runtime configuration loaded from a yaml file.
type Config struct {
	// FuelPerStep is the instruction budget handed to each Step call.
	FuelPerStep int `yaml:"fuel_per_step"`
	// MaxCallDepth bounds the frame chain of a single thread.
	MaxCallDepth int `yaml:"max_call_depth"`
	// MaxStackSlots bounds a thread's value stack.
	MaxStackSlots int `yaml:"max_stack_slots"`
	GC            GC  `yaml:"gc"`
	// LogLevel is a zerolog level name ("debug", "info", ...). Empty
	// disables logging.
	LogLevel string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		FuelPerStep:   DefaultFuelPerStep,
		MaxCallDepth:  DefaultMaxCallDepth,
		MaxStackSlots: DefaultMaxStack,
		GC: GC{
			StepWork:     DefaultGCStepWork,
			PausePercent: DefaultGCPause,
		},
	}
}

// Load reads a yaml config file. Fields absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.FuelPerStep <= 0 {
		return fmt.Errorf("fuel_per_step must be positive, got %d", c.FuelPerStep)
	}
	if c.MaxCallDepth <= 0 {
		return fmt.Errorf("max_call_depth must be positive, got %d", c.MaxCallDepth)
	}
	if c.MaxStackSlots <= 0 {
		return fmt.Errorf("max_stack_slots must be positive, got %d", c.MaxStackSlots)
	}
	if c.GC.StepWork < 0 || c.GC.PausePercent < 0 || c.GC.ObjectLimit < 0 {
		return fmt.Errorf("gc settings must not be negative")
	}
	return nil
}
