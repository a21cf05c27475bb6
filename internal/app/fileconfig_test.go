package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaultsMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("NETPULSE_CONFIG_FILE", filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	fd := loadFileDefaults(nil)
	assert.Empty(t, fd.Server.Host)
}

func TestLoadFileDefaultsParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netpulse.yaml")
	contents := `
server:
  host: 10.0.0.5
  port: "9090"
store:
  addr: redis.internal:6379
  sentinel_addrs: ["s1:26379", "s2:26379"]
  sentinel_master: mymaster
job:
  ttl: 5m
  sweep_interval: 15s
node:
  pinned_per_node: "32"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	t.Setenv("NETPULSE_CONFIG_FILE", path)

	fd := loadFileDefaults(nil)
	assert.Equal(t, "10.0.0.5", fd.Server.Host)
	assert.Equal(t, "9090", fd.Server.Port)
	assert.Equal(t, "redis.internal:6379", fd.Store.Addr)
	assert.Equal(t, []string{"s1:26379", "s2:26379"}, fd.Store.SentinelAddrs)
	assert.Equal(t, "mymaster", fd.Store.SentinelMaster)
	assert.Equal(t, "32", fd.Node.PinnedPerNode)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netpulse.yaml")
	contents := `
server:
  port: "9090"
job:
  ttl: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	t.Setenv("NETPULSE_CONFIG_FILE", path)
	t.Setenv("NETPULSE_SERVER__PORT", "7070")

	cfg := LoadConfig(nil)
	assert.Equal(t, "7070", cfg.Server.Port, "env var must trump the file")
	assert.Equal(t, 5*time.Minute, cfg.Job.TTL, "unset env falls back to the file value")
}

func TestDurIntBoolOrFallbacks(t *testing.T) {
	assert.Equal(t, 2*time.Second, durOr("", 2*time.Second))
	assert.Equal(t, 2*time.Second, durOr("not-a-duration", 2*time.Second))
	assert.Equal(t, 5*time.Second, durOr("5s", 2*time.Second))

	assert.Equal(t, 4, intOr("", 4))
	assert.Equal(t, 4, intOr("nope", 4))
	assert.Equal(t, 9, intOr("9", 4))

	assert.Equal(t, true, boolOr("", true))
	assert.Equal(t, false, boolOr("false", true))
}
