package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	d := Default()
	require.Equal(t, 1000, d.KeysPerSegment)
	require.Equal(t, "prod", d.Env)
}

func TestFromFlagsOverridesDefaults(t *testing.T) {
	cfg, err := FromFlags("test", []string{"-keys-per-segment=50", "-env=dev", "-listen-addr=:9090"})
	require.NoError(t, err)
	require.Equal(t, 50, cfg.KeysPerSegment)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, ":9090", cfg.ListenAddr)
}

func TestFromFlagsEnvFallback(t *testing.T) {
	t.Setenv("ENGINE_SNAPSHOT_WORKERS", "8")
	cfg, err := FromFlags("test", nil)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.SnapshotWorkers)
}

func TestFromFlagsRejectsUnknownFlag(t *testing.T) {
	_, err := FromFlags("test", []string{"-does-not-exist=1"})
	require.Error(t, err)
}
