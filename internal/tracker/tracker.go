// Package tracker implements the Change Tracker (spec.md §4.4, C4):
// per-file (mtime, size) + content-hash fingerprints used to classify
// files as unchanged, changed, new, or removed without re-reading every
// file's content on every refresh.
package tracker

import (
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is the cached state for one path (spec.md §3.1
// FileFingerprint).
type Fingerprint struct {
	Path        string
	ContentHash uint64
	ModTime     time.Time
	Size        int64
}

// Tracker owns the fingerprint map. Safe for concurrent use; callers that
// need is_changed + update_tracking to be atomic with respect to other
// trackers should still hold the engine-wide coordination lock (spec.md
// §5) since the Tracker's own lock does not span the Incremental
// Updater's multi-step delta application.
type Tracker struct {
	mu           sync.Mutex
	fingerprints map[string]Fingerprint
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{fingerprints: make(map[string]Fingerprint)}
}

// Status is the outcome of IsChanged.
type Status int

const (
	// StatusUntracked means the path has no fingerprint yet; the caller
	// decides whether that means "new" (spec.md §4.4 step 1).
	StatusUntracked Status = iota
	StatusUnchanged
	StatusChanged
)

// IsChanged classifies path against its cached fingerprint, following
// spec.md §4.4: cheap (mtime, size) comparison first, content hash only
// on a metadata mismatch.
func (t *Tracker) IsChanged(path string) (Status, error) {
	info, err := os.Stat(path)
	if err != nil {
		return StatusChanged, err
	}

	t.mu.Lock()
	prev, tracked := t.fingerprints[path]
	t.mu.Unlock()

	if !tracked {
		return StatusUntracked, nil
	}

	if info.ModTime().Equal(prev.ModTime) && info.Size() == prev.Size {
		return StatusUnchanged, nil
	}

	hash, err := hashFile(path)
	if err != nil {
		return StatusChanged, err
	}
	if hash == prev.ContentHash {
		// Metadata changed (e.g. a touch with no content edit) but
		// content didn't; refresh the cheap fields so the next check is
		// a metadata-only comparison again.
		t.mu.Lock()
		prev.ModTime = info.ModTime()
		prev.Size = info.Size()
		t.fingerprints[path] = prev
		t.mu.Unlock()
		return StatusUnchanged, nil
	}
	return StatusChanged, nil
}

// UpdateTracking recomputes and stores the fingerprint for path.
func (t *Tracker) UpdateTracking(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hash, err := hashFile(path)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.fingerprints[path] = Fingerprint{
		Path:        path,
		ContentHash: hash,
		ModTime:     info.ModTime(),
		Size:        info.Size(),
	}
	t.mu.Unlock()
	return nil
}

// RemoveTracking drops path's fingerprint.
func (t *Tracker) RemoveTracking(path string) {
	t.mu.Lock()
	delete(t.fingerprints, path)
	t.mu.Unlock()
}

// Tracked reports whether path currently has a fingerprint.
func (t *Tracker) Tracked(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.fingerprints[path]
	return ok
}

// TrackedPaths returns every path with a fingerprint.
func (t *Tracker) TrackedPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.fingerprints))
	for p := range t.fingerprints {
		out = append(out, p)
	}
	return out
}

// Reset clears all fingerprints.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.fingerprints = make(map[string]Fingerprint)
	t.mu.Unlock()
}

func hashFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
