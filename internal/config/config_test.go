package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.DurabilityDir)
	assert.Equal(t, 0, cfg.WorkerID)
	assert.Equal(t, time.Second, cfg.GCInterval.Std())
	assert.Equal(t, filepath.Join("data", "snapshots"), cfg.SnapshotDir())
	assert.Equal(t, filepath.Join("data", "wal"), cfg.WalDir())
}

func TestLoadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
durability_dir: /var/lib/memgraph
worker_id: 3
gc_interval: 30s
snapshot_on_exit: true
plan_cache_ttl: 10m
raft_server_id: 1
raft_port: 10000
log:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/memgraph", cfg.DurabilityDir)
	assert.Equal(t, 3, cfg.WorkerID)
	assert.Equal(t, 30*time.Second, cfg.GCInterval.Std())
	assert.True(t, cfg.SnapshotOnExit)
	assert.Equal(t, 10*time.Minute, cfg.PlanCacheTTL.Std())
	assert.Equal(t, 1, cfg.RaftServerID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestValidateRejectsBadWorkerID(t *testing.T) {
	cfg := Default()
	cfg.WorkerID = 5000
	assert.Error(t, cfg.Validate())
}

func TestBadDurationRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gc_interval: soon\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
