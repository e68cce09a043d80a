package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/amp-core/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "console", config.Logger.Format)
		assert.Equal(t, []string{"ref", "cpu"}, config.Compute.Backends)
		assert.Equal(t, 4, config.Compute.Workers)
		assert.Equal(t, 16, config.Compute.MinChunkSize)
		assert.Equal(t, 8, config.Compute.QueueDepth)
		assert.Equal(t, "cpu", config.Compute.DefaultDevice)
		assert.Equal(t, "127.0.0.1:9464", config.Metrics.ListenAddress)
	})

	t.Run("defaults fill missing fields", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/minimal_config.yaml")
		require.NoError(t, err)

		assert.Equal(t, "warn", config.Logger.Verbosity)
		assert.Equal(t, DefaultLogFormat, config.Logger.Format)
		assert.Equal(t, DefaultBackends, config.Compute.Backends)
		assert.Equal(t, 0, config.Compute.Workers)
		assert.Equal(t, DefaultMinChunkSize, config.Compute.MinChunkSize)
		assert.Equal(t, DefaultQueueDepth, config.Compute.QueueDepth)
		assert.Empty(t, config.Compute.DefaultDevice)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})
}

func TestDefault(t *testing.T) {
	config := Default()

	assert.Equal(t, DefaultVerbosity, config.Logger.Verbosity)
	assert.Equal(t, DefaultBackends, config.Compute.Backends)

	// Mutating one config must not leak into the shared default list
	config.Compute.Backends[0] = "host"
	assert.Equal(t, "cpu", DefaultBackends[0])
}

func TestConfigTemplate(t *testing.T) {
	var config Config
	require.NoError(t, yaml.Unmarshal(fixtures.ConfigTemplate, &config))
	config.applyDefaults()

	assert.Equal(t, DefaultVerbosity, config.Logger.Verbosity)
	assert.Equal(t, "console", config.Logger.Format)
	assert.Equal(t, DefaultBackends, config.Compute.Backends)
	assert.Equal(t, DefaultMinChunkSize, config.Compute.MinChunkSize)
	assert.Equal(t, DefaultQueueDepth, config.Compute.QueueDepth)
	assert.Equal(t, "cpu", config.Compute.DefaultDevice)
	assert.Empty(t, config.Metrics.ListenAddress)
}
