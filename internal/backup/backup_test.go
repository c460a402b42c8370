package backup

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddAndGetBackupRoundTrips(t *testing.T) {
	c := New(DefaultConfig())
	op := NewOperation("a.go", "package a\n", "package a\n\nfunc Foo() {}\n", FileStateSnapshot{Path: "a.go", Valid: true}, 5*time.Second)
	require.Nil(t, c.AddBackup(op))

	got := c.GetBackup("a.go")
	require.NotNil(t, got)
	require.Equal(t, "package a\n", got.OriginalContent)
	require.Equal(t, "package a\n\nfunc Foo() {}\n", got.NewContent)
	require.Equal(t, op.OperationID, got.OperationID)
}

func TestNewOperationMemorySizeSumsOriginalAndNew(t *testing.T) {
	op := NewOperation("a.go", "short", "a much longer replacement body", FileStateSnapshot{}, time.Second)
	require.Equal(t, int64(len("short")+len("a much longer replacement body")), op.MemorySize)
}

func TestAddBackupRejectsOversizedFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFileSizeMB = 0 // caps at 0 bytes, so any content is "oversized"
	c := New(cfg)
	op := NewOperation("a.go", "x", "x2", FileStateSnapshot{}, time.Second)

	err := c.AddBackup(op)
	require.NotNil(t, err)
	require.Equal(t, "resource.backup_refused", err.Kind)
}

func TestAddBackupEvictsLRUOnMaxBackups(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBackups = 2
	c := New(cfg)

	require.Nil(t, c.AddBackup(NewOperation("a.go", "1", "1b", FileStateSnapshot{}, time.Second)))
	require.Nil(t, c.AddBackup(NewOperation("b.go", "2", "2b", FileStateSnapshot{}, time.Second)))
	require.Nil(t, c.AddBackup(NewOperation("c.go", "3", "3b", FileStateSnapshot{}, time.Second)))

	require.Nil(t, c.GetBackup("a.go"))
	require.NotNil(t, c.GetBackup("b.go"))
	require.NotNil(t, c.GetBackup("c.go"))
}

func TestAddBackupEvictsLRUOnMemoryCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemoryMB = 1
	c := New(cfg)
	maxBytes := int64(1) * 1024 * 1024
	big := strings.Repeat("x", int(maxBytes)-10)

	require.Nil(t, c.AddBackup(NewOperation("a.go", big, "", FileStateSnapshot{}, time.Second)))
	require.Nil(t, c.AddBackup(NewOperation("b.go", big, "", FileStateSnapshot{}, time.Second)))

	require.Nil(t, c.GetBackup("a.go"))
	require.NotNil(t, c.GetBackup("b.go"))
}

func TestRemoveBackup(t *testing.T) {
	c := New(DefaultConfig())
	require.Nil(t, c.AddBackup(NewOperation("a.go", "x", "x2", FileStateSnapshot{}, time.Second)))
	c.RemoveBackup("a.go")
	require.Nil(t, c.GetBackup("a.go"))
}

func TestCleanupExpired(t *testing.T) {
	c := New(DefaultConfig())
	op := NewOperation("a.go", "x", "x2", FileStateSnapshot{}, time.Second)
	op.CreatedAt = time.Now().Add(-time.Hour)
	require.Nil(t, c.AddBackup(op))
	require.Nil(t, c.AddBackup(NewOperation("b.go", "y", "y2", FileStateSnapshot{}, time.Second)))

	n := c.CleanupExpired(time.Minute)
	require.Equal(t, 1, n)
	require.Nil(t, c.GetBackup("a.go"))
	require.NotNil(t, c.GetBackup("b.go"))
}

func TestPressureLevels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemoryMB = 1
	cfg.WarningThreshold = 0.5
	c := New(cfg)
	require.Equal(t, PressureNone, c.Pressure())

	maxBytes := int64(1) * 1024 * 1024
	content := strings.Repeat("x", int(float64(maxBytes)*0.6))
	require.Nil(t, c.AddBackup(NewOperation("a.go", content, "", FileStateSnapshot{}, time.Second)))
	require.Equal(t, PressureWarning, c.Pressure())
}

func TestListBackupsOrdersByRecency(t *testing.T) {
	c := New(DefaultConfig())
	require.Nil(t, c.AddBackup(NewOperation("a.go", "1", "1b", FileStateSnapshot{}, time.Second)))
	require.Nil(t, c.AddBackup(NewOperation("b.go", "2", "2b", FileStateSnapshot{}, time.Second)))
	c.GetBackup("a.go")

	require.Equal(t, []string{"b.go", "a.go"}, c.ListBackups())
}

func TestStatsReportsProcessAndSystemMemory(t *testing.T) {
	c := New(DefaultConfig())
	snap := c.Stats()

	require.Equal(t, PressureNone, snap.Level)
	require.Greater(t, snap.ProcessRSSBytes, uint64(0))
	require.Greater(t, snap.SystemAvailableBytes, uint64(0))
}

func TestStatsFiresWarningCallbackUnderPressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemoryMB = 1
	cfg.WarningThreshold = 0.5
	c := New(cfg)

	var gotWarning, gotCritical bool
	c.OnPressure(
		func(MemorySnapshot) { gotWarning = true },
		func(MemorySnapshot) { gotCritical = true },
	)

	maxBytes := int64(1) * 1024 * 1024
	content := strings.Repeat("x", int(float64(maxBytes)*0.6))
	require.Nil(t, c.AddBackup(NewOperation("a.go", content, "", FileStateSnapshot{}, time.Second)))

	snap := c.Stats()
	require.Equal(t, PressureWarning, snap.Level)
	require.True(t, gotWarning)
	require.False(t, gotCritical)
}
