package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cluster:
  addresses:
    - "10.0.0.1:10800"
    - "10.0.0.2:10800"
  dial_timeout: 2s
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1:10800", "10.0.0.2:10800"}, cfg.Cluster.Addresses)
	require.Equal(t, 2*time.Second, cfg.Cluster.DialTimeout)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:10800"}, cfg.Cluster.Addresses)
	require.Equal(t, 5*time.Second, cfg.Cluster.DialTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
