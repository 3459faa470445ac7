package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 4096, cfg.QueueCapacity)
	assert.Equal(t, 10*time.Millisecond, cfg.EventBatchTimeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("MATCHING_LISTEN_ADDR", ":9999")
	os.Setenv("MATCHING_QUEUE_CAPACITY", "128")
	defer os.Unsetenv("MATCHING_LISTEN_ADDR")
	defer os.Unsetenv("MATCHING_QUEUE_CAPACITY")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 128, cfg.QueueCapacity)
}

func TestLoad_MissingConfigFileIsNotFatal(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
}
