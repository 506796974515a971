package app

import (
	"fmt"
	"os"

	"spool/kernel"

	"github.com/pelletier/go-toml/v2"
)

// Config is the demo host configuration, usually loaded from spool.toml.
type Config struct {
	Runtime   RuntimeConfig `toml:"runtime"`
	Host      HostConfig    `toml:"host"`
	Metrics   MetricsConfig `toml:"metrics"`
	Scenarios []string      `toml:"scenarios"`
}

type RuntimeConfig struct {
	// Name titles the monitor and fault screen.
	Name string `toml:"name"`
	// Instance is the scheduler instance id that labels logs and metrics. It
	// is assigned at startup and never read from a file.
	Instance   string `toml:"-"`
	StackSize  int    `toml:"stack_size"`
	MaxThreads int    `toml:"max_threads"`
	// StackLimit caps live stack regions. Zero means unlimited.
	StackLimit int `toml:"stack_limit"`
	// Trace routes scheduler lifecycle lines to the host logger.
	Trace bool `toml:"trace"`
}

type HostConfig struct {
	Headless bool   `toml:"headless"`
	Hz       int    `toml:"hz"`
	Ticks    uint64 `toml:"ticks"`
	Width    int    `toml:"width"`
	Height   int    `toml:"height"`
	// LogLines is how many recent log lines the monitor keeps.
	LogLines int `toml:"log_lines"`
}

type MetricsConfig struct {
	// Listen is the /metrics address. Empty disables the endpoint.
	Listen    string `toml:"listen"`
	Namespace string `toml:"namespace"`
}

// DefaultScenarios run when the config names none.
var DefaultScenarios = []string{
	"roundrobin threads=3 rounds=4",
	"prodcon producers=2 consumers=2 items=4 slots=2",
	"pingpong rounds=3",
	"spawn depth=2 fanout=2",
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Runtime: RuntimeConfig{
			Name:       "spool",
			StackSize:  kernel.DefaultStackSize,
			MaxThreads: kernel.DefaultMaxThreads,
		},
		Host: HostConfig{
			Hz:       60,
			LogLines: 64,
		},
		Metrics: MetricsConfig{
			Namespace: "spool",
		},
	}
}

// LoadConfig reads a TOML config file over the defaults. A missing file is
// not an error when optional is set.
func LoadConfig(path string, optional bool) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the runtime would reject later.
func (c Config) Validate() error {
	if c.Runtime.StackSize != 0 && c.Runtime.StackSize < kernel.MinStackSize {
		return fmt.Errorf("runtime.stack_size %d below minimum %d", c.Runtime.StackSize, kernel.MinStackSize)
	}
	if c.Runtime.MaxThreads < 0 {
		return fmt.Errorf("runtime.max_threads %d is negative", c.Runtime.MaxThreads)
	}
	if c.Host.Hz < 0 {
		return fmt.Errorf("host.hz %d is negative", c.Host.Hz)
	}
	for i, line := range c.Scenarios {
		if _, err := ParseScenario(line); err != nil {
			return fmt.Errorf("scenarios[%d]: %w", i, err)
		}
	}
	return nil
}

func (c Config) scenarios() []string {
	if len(c.Scenarios) == 0 {
		return DefaultScenarios
	}
	return c.Scenarios
}

// Marshal encodes the config as TOML.
func (c Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
