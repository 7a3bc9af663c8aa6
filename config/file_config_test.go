package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaultsWithoutFiles(t *testing.T) {
	c, err := NewConfig(&CmdEnv{}, nil)
	require.NoError(t, err)

	assert.False(t, c.GetGeneralConfig().Sharding)
	assert.Equal(t, "stdout", c.GetLoggerType())
	assert.Equal(t, InfoLevel, c.GetLoggerLevel())
	assert.Equal(t, "inmem", c.GetCatalogConfig().Storage)
	assert.Equal(t, "memory://", c.GetStorageConfig().URI)
	assert.Equal(t, "localhost:6379", c.GetRedisConfig().Host)
	assert.Equal(t, Duration(5*time.Second), c.GetRedisConfig().Timeout)
	assert.Equal(t, 10, c.GetLimitsConfig().DefaultQueuePaging)
	assert.Equal(t, "localhost:2112", c.GetPrometheusMetricsConfig().ListenAddr)
	assert.NotNil(t, c.GetBackendOptions("memory"))
	assert.Empty(t, c.GetBackendOptions("memory"))
}

func TestLayeredFiles(t *testing.T) {
	yamlPath := writeConfigFile(t, "base.yaml", `
General:
  Sharding: true
Catalog:
  Storage: redis
Redis:
  Host: redis.internal:6379
  Timeout: 2s
Backends:
  memory:
    max_messages: 100
`)
	tomlPath := writeConfigFile(t, "override.toml", `
[Logger]
Level = "debug"

[Redis]
Prefix = "qr"
`)

	c, err := NewConfig(&CmdEnv{ConfigLocations: []string{yamlPath, tomlPath}}, nil)
	require.NoError(t, err)

	assert.True(t, c.GetGeneralConfig().Sharding)
	assert.Equal(t, DebugLevel, c.GetLoggerLevel())
	rc := c.GetRedisConfig()
	assert.Equal(t, "redis.internal:6379", rc.Host)
	assert.Equal(t, "qr", rc.Prefix)
	assert.Equal(t, Duration(2*time.Second), rc.Timeout)
	assert.EqualValues(t, 100, c.GetBackendOptions("memory")["max_messages"])
	assert.NotEmpty(t, c.GetHash())
}

func TestCommandLineOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "c.json", `{"Catalog": {"Storage": "mysql"}, "MySQL": {"DSN": "user@/db"}}`)

	c, err := NewConfig(&CmdEnv{ConfigLocations: []string{path}, CatalogStorage: "inmem", LoggerLevel: ErrorLevel}, nil)
	require.NoError(t, err)
	assert.Equal(t, "inmem", c.GetCatalogConfig().Storage)
	assert.Equal(t, ErrorLevel, c.GetLoggerLevel())
	assert.Equal(t, "user@/db", c.GetMySQLConfig().DSN)
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"bad catalog storage", "Catalog:\n  Storage: etcd\n"},
		{"mysql without dsn", "Catalog:\n  Storage: mysql\n"},
		{"storage uri without scheme", "Storage:\n  URI: just-a-path\n"},
		{"negative paging", "Limits:\n  DefaultQueuePaging: -1\n"},
		{"bad logger type", "Logger:\n  Type: syslog\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, "c.yaml", tt.contents)
			_, err := NewConfig(&CmdEnv{ConfigLocations: []string{path}}, nil)
			assert.Error(t, err)
		})
	}
}

func TestShardingSkipsStorageURICheck(t *testing.T) {
	path := writeConfigFile(t, "c.yaml", "General:\n  Sharding: true\nStorage:\n  URI: just-a-path\n")
	_, err := NewConfig(&CmdEnv{ConfigLocations: []string{path}}, nil)
	assert.NoError(t, err)
}

func TestReload(t *testing.T) {
	path := writeConfigFile(t, "c.yaml", "Limits:\n  DefaultClaimLimit: 5\n")

	var reloadErr error
	c, err := NewConfig(&CmdEnv{ConfigLocations: []string{path}}, func(err error) { reloadErr = err })
	require.NoError(t, err)
	assert.Equal(t, 5, c.GetLimitsConfig().DefaultClaimLimit)

	var hashes []string
	c.RegisterReloadCallback(func(h string) { hashes = append(hashes, h) })

	// unchanged content does not fire callbacks
	c.Reload()
	assert.Empty(t, hashes)

	require.NoError(t, os.WriteFile(path, []byte("Limits:\n  DefaultClaimLimit: 7\n"), 0o600))
	c.Reload()
	require.Len(t, hashes, 1)
	assert.Equal(t, c.GetHash(), hashes[0])
	assert.Equal(t, 7, c.GetLimitsConfig().DefaultClaimLimit)

	// an invalid file keeps the previous config
	require.NoError(t, os.WriteFile(path, []byte("Catalog:\n  Storage: nope\n"), 0o600))
	c.Reload()
	assert.Error(t, reloadErr)
	assert.Len(t, hashes, 1)
	assert.Equal(t, 7, c.GetLimitsConfig().DefaultClaimLimit)
}

func TestBackendOptionsAreCopies(t *testing.T) {
	path := writeConfigFile(t, "c.yaml", "Backends:\n  memory:\n    a: 1\n")
	c, err := NewConfig(&CmdEnv{ConfigLocations: []string{path}}, nil)
	require.NoError(t, err)

	opts := c.GetBackendOptions("memory")
	opts["a"] = 2
	assert.EqualValues(t, 1, c.GetBackendOptions("memory")["a"])
}

func TestPipelineStages(t *testing.T) {
	path := writeConfigFile(t, "c.toml", `
[Pipeline]
Queue = ["validate", "metrics"]
Claim = ["log"]
`)
	c, err := NewConfig(&CmdEnv{ConfigLocations: []string{path}}, nil)
	require.NoError(t, err)

	pc := c.GetPipelineConfig()
	assert.Equal(t, []string{"validate", "metrics"}, pc.Queue)
	assert.Empty(t, pc.Message)
	assert.Equal(t, []string{"log"}, pc.Claim)
}
