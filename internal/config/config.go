package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultVerbosity    = "info"
	DefaultLogFormat    = "json"
	DefaultMinChunkSize = 64
	DefaultQueueDepth   = 64
)

// DefaultBackends is the backend list used when the config names none.
var DefaultBackends = []string{"cpu", "ref"}

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Format    string `yaml:"format"`
	} `yaml:"logger"`
	Compute struct {
		Backends      []string `yaml:"backends"`
		Workers       int      `yaml:"workers"`
		MinChunkSize  int      `yaml:"minChunkSize"`
		QueueDepth    int      `yaml:"queueDepth"`
		DefaultDevice string   `yaml:"defaultDevice"`
	} `yaml:"compute"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
}

// Default returns a config with every default applied.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Logger.Verbosity == "" {
		c.Logger.Verbosity = DefaultVerbosity
	}
	if c.Logger.Format == "" {
		c.Logger.Format = DefaultLogFormat
	}
	if len(c.Compute.Backends) == 0 {
		c.Compute.Backends = append([]string(nil), DefaultBackends...)
	}
	if c.Compute.MinChunkSize <= 0 {
		c.Compute.MinChunkSize = DefaultMinChunkSize
	}
	if c.Compute.QueueDepth <= 0 {
		c.Compute.QueueDepth = DefaultQueueDepth
	}
}
