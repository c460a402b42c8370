// Package cas (content-address snapshot) builds and compares the
// FileStateSnapshot fingerprints spec.md §3.1 attaches to every
// EditOperation, so the Atomic Edit Engine can detect whether a file
// changed externally between a backup and a rollback attempt (spec.md
// §4.10 step 9: "if the backup's stored fingerprint still matches...").
package cas

import (
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/codeindexd/internal/backup"
)

// Snapshot builds a FileStateSnapshot from content already read from
// disk for relPath.
func Snapshot(relPath string, content []byte) backup.FileStateSnapshot {
	return backup.FileStateSnapshot{
		Path:        relPath,
		ContentHash: xxhash.Sum64(content),
		Size:        int64(len(content)),
		Valid:       true,
	}
}

// Matches reports whether diskPath's current on-disk content still
// matches snapshot. A snapshot with Valid == false always matches
// (spec.md §4.10 step 6: "if recompute fails, clear the stored
// fingerprint; rollback will proceed but without external-modification
// detection").
func Matches(relPath, diskPath string, snapshot backup.FileStateSnapshot) bool {
	if !snapshot.Valid {
		return true
	}
	data, err := os.ReadFile(diskPath)
	if err != nil {
		return false
	}
	current := Snapshot(relPath, data)
	return current.ContentHash == snapshot.ContentHash && current.Size == snapshot.Size
}
