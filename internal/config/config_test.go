package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, 50, cfg.Backup.MaxMemoryMB)
	require.Equal(t, 10, cfg.Backup.MaxFileSizeMB)
	require.Equal(t, 1000, cfg.Backup.MaxBackups)
	require.Equal(t, 300, cfg.Backup.BackupTimeoutSeconds)
	require.InDelta(t, 0.8, cfg.Backup.WarningThreshold, 1e-9)
	require.Equal(t, 30, cfg.Lock.TimeoutSeconds)
	require.Equal(t, 50, cfg.Search.ParallelThreshold)
}

func TestLoadAppliesKDLOverrides(t *testing.T) {
	dir := t.TempDir()
	kdl := "backup {\n  max_memory_mb 5\n  max_backups 4\n}\nlock {\n  timeout_seconds 2\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(kdl), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Backup.MaxMemoryMB)
	require.Equal(t, 4, cfg.Backup.MaxBackups)
	require.Equal(t, 2, cfg.Lock.TimeoutSeconds)
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CODEINDEXD_MAX_MEMORY_MB", "7")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Backup.MaxMemoryMB)
}

func TestLoadMissingConfigFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Default().Backup, cfg.Backup)
}
