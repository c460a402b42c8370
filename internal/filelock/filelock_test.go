package filelock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codeindexd/internal/errtax"
)

func TestAcquireReleaseExclusive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	m := New(dir)

	h, err := m.Acquire(path, Exclusive, "owner-1", time.Second)
	require.Nil(t, err)
	require.NoError(t, h.Release())
}

func TestSharedLocksCoexist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	m := New(dir)

	h1, err := m.Acquire(path, Shared, "owner-1", time.Second)
	require.Nil(t, err)
	h2, err := m.Acquire(path, Shared, "owner-2", time.Second)
	require.Nil(t, err)

	require.NoError(t, h1.Release())
	require.NoError(t, h2.Release())
}

func TestExclusiveBlocksOtherOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	m := New(dir)

	h1, err := m.Acquire(path, Exclusive, "owner-1", time.Second)
	require.Nil(t, err)

	_, err2 := m.Acquire(path, Exclusive, "owner-2", 20*time.Millisecond)
	require.NotNil(t, err2)
	require.Equal(t, errtax.LockTimeout, err2.Kind)

	require.NoError(t, h1.Release())
}

func TestReentrantSameOwnerSameKindSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	m := New(dir)

	h1, err := m.Acquire(path, Exclusive, "owner-1", time.Second)
	require.Nil(t, err)
	h2, err := m.Acquire(path, Exclusive, "owner-1", time.Second)
	require.Nil(t, err)

	require.NoError(t, h1.Release())
	require.NoError(t, h2.Release())
}

func TestReentrantMismatchedKindIsIncompatible(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	m := New(dir)

	h1, err := m.Acquire(path, Exclusive, "owner-1", time.Second)
	require.Nil(t, err)

	_, err2 := m.Acquire(path, Shared, "owner-1", time.Second)
	require.NotNil(t, err2)
	require.Equal(t, errtax.IncompatibleKind, err2.Kind)

	require.NoError(t, h1.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	m := New(dir)

	h, err := m.Acquire(path, Exclusive, "owner-1", time.Second)
	require.Nil(t, err)
	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
}

func TestLockReleasedAllowsNewAcquisition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	m := New(dir)

	h1, err := m.Acquire(path, Exclusive, "owner-1", time.Second)
	require.Nil(t, err)
	require.NoError(t, h1.Release())

	h2, err := m.Acquire(path, Exclusive, "owner-2", time.Second)
	require.Nil(t, err)
	require.NoError(t, h2.Release())
}
