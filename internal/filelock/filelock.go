// Package filelock implements the File Lock Manager (spec.md §4.9, C9):
// per-path exclusive/shared locks with timeout+retry acquisition,
// reentrant from the same owner on the same path/kind, registered for
// process-exit cleanup.
package filelock

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/standardbeagle/codeindexd/internal/errtax"
)

// Kind distinguishes shared (read) from exclusive (write) locks.
type Kind int

const (
	Shared Kind = iota
	Exclusive
)

func (k Kind) String() string {
	if k == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Handle is a held lock. Release is idempotent.
type Handle struct {
	mu      sync.Mutex
	manager *Manager
	path    string
	kind    Kind
	owner   string
	file    *os.File
	sentinel string
	released bool
}

// Release drops this handle's hold on path. If the owner had reentered
// the same lock multiple times, the underlying OS lock is only released
// once the last handle for that (owner, path) pair is released.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	return h.manager.release(h)
}

type entry struct {
	mu        sync.Mutex
	kind      Kind
	owners    map[string]int // owner id -> reentry depth
	file      *os.File
	sentinel  string
}

// Manager tracks per-path locks for the current process. Its own
// bookkeeping mutex is held only around registry operations, never for
// the duration of a blocking acquisition (spec.md §5).
type Manager struct {
	mu        sync.Mutex
	entries   map[string]*entry
	lockDir   string // directory for sibling lock files; "" uses path+".lock"
	staleAfter time.Duration
}

// New builds a Manager. lockDir, if non-empty, is where sibling lock
// files are created instead of "<path>.lock" in the target's own
// directory.
func New(lockDir string) *Manager {
	m := &Manager{
		entries:    make(map[string]*entry),
		lockDir:    lockDir,
		staleAfter: 30 * time.Second,
	}
	registerCleanup(m)
	return m
}

// Acquire acquires a lock of kind on path for owner (typically a
// goroutine or request ID), retrying with backoff until timeout elapses.
// Reentrant calls from the same owner on the same path succeed only if
// kind matches the held kind; a mismatched kind raises incompatible_kind
// (spec.md §4.9).
func (m *Manager) Acquire(path string, kind Kind, owner string, timeout time.Duration) (*Handle, *errtax.CodeError) {
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	for {
		h, err := m.tryAcquire(path, kind, owner)
		if err == nil {
			return h, nil
		}
		if err.Kind == errtax.IncompatibleKind {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, errtax.New(errtax.LockTimeout, "filelock.acquire",
				"timed out after %s acquiring %s lock on %s", timeout, kind, path).WithPath(path)
		}
		sleep := backoff
		if remaining := time.Until(deadline); sleep > remaining {
			sleep = remaining
		}
		time.Sleep(sleep)
		if backoff < 25*time.Millisecond {
			backoff *= 2
		}
	}
}

func (m *Manager) tryAcquire(path string, kind Kind, owner string) (*Handle, *errtax.CodeError) {
	m.mu.Lock()
	e, ok := m.entries[path]
	if !ok {
		e = &entry{owners: make(map[string]int)}
		m.entries[path] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if depth, held := e.owners[owner]; held {
		if e.kind != kind {
			return nil, errtax.New(errtax.IncompatibleKind, "filelock.acquire",
				"owner already holds a %s lock on %s, cannot reacquire as %s", e.kind, path, kind).WithPath(path)
		}
		e.owners[owner] = depth + 1
		return &Handle{manager: m, path: path, kind: kind, owner: owner}, nil
	}

	if len(e.owners) > 0 {
		if e.kind == Shared && kind == Shared {
			e.owners[owner] = 1
			return &Handle{manager: m, path: path, kind: kind, owner: owner}, nil
		}
		return nil, errtax.New(errtax.LockUnavailable, "filelock.acquire",
			"%s lock on %s held by another owner", e.kind, path).WithPath(path)
	}

	file, sentinel, err := m.acquireOS(path, kind)
	if err != nil {
		return nil, errtax.Wrap(errtax.LockUnavailable, "filelock.acquire", err,
			"could not acquire %s lock on %s", kind, path).WithPath(path)
	}

	e.kind = kind
	e.file = file
	e.sentinel = sentinel
	e.owners[owner] = 1
	return &Handle{manager: m, path: path, kind: kind, owner: owner, file: file, sentinel: sentinel}, nil
}

func (m *Manager) release(h *Handle) error {
	m.mu.Lock()
	e, ok := m.entries[h.path]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	depth := e.owners[h.owner]
	if depth <= 1 {
		delete(e.owners, h.owner)
	} else {
		e.owners[h.owner] = depth - 1
		return nil
	}

	if len(e.owners) > 0 {
		return nil
	}

	err := m.releaseOS(e.file, e.sentinel)
	e.file = nil
	e.sentinel = ""

	m.mu.Lock()
	if len(e.owners) == 0 {
		delete(m.entries, h.path)
	}
	m.mu.Unlock()

	return err
}

// ReleaseAll force-releases every lock this Manager holds, for use in
// the process-exit cleanup hook (spec.md §4.9).
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	entries := make(map[string]*entry, len(m.entries))
	for k, v := range m.entries {
		entries[k] = v
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		_ = m.releaseOS(e.file, e.sentinel)
		e.mu.Unlock()
	}
}

func sentinelPath(lockDir, path string) string {
	if lockDir != "" {
		return lockDir + "/" + base(path) + ".lock"
	}
	return path + ".lock"
}

func base(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func fmtSentinel(kind Kind) string {
	return fmt.Sprintf("%d\n%d\n%s\n", os.Getpid(), time.Now().Unix(), kind)
}
