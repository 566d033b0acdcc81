package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Indexer.FlushInterval)
	assert.True(t, cfg.Indexer.BufferingEnabled)
	assert.Equal(t, ForwardBackendBadger, cfg.Indexer.ForwardBackend)
	assert.Equal(t, 2, cfg.Indexer.OpenAttempts)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	yaml := `
indexer:
  dataDir: /var/lib/ix
  flushInterval: 30s
  validateValueContract: true
  mapWorkers: 8
kafka:
  enabled: true
  brokers: ["k1:9092"]
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("IX_LOGGING_FORMAT", "text")
	t.Setenv("IX_KAFKA_BROKERS", "a:1,b:2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ix", cfg.Indexer.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Indexer.FlushInterval)
	assert.True(t, cfg.Indexer.ValidateValueContract)
	assert.Equal(t, 8, cfg.Indexer.MapWorkers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	// defaults survive partial YAML
	assert.Equal(t, 4096, cfg.Indexer.ForwardCacheSize)
}

func TestValidateRejectsUnknownForwardBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Indexer.ForwardBackend = "etcd"
	assert.ErrorContains(t, cfg.Validate(), "forwardBackend")
}

func TestValidateRequiresDataDir(t *testing.T) {
	cfg := defaultConfig()
	cfg.Indexer.DataDir = ""
	assert.Error(t, cfg.Validate())

	cfg.Badger.InMemory = true
	assert.NoError(t, cfg.Validate())
}
