// Package backup implements the Backup Cache (spec.md §4.8, C8): a
// bounded, LRU-evicting store of EditOperation records carrying original
// file content, keyed by file path, that the Atomic Edit Engine uses for
// rollback.
package backup

import (
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/standardbeagle/codeindexd/internal/debug"
	"github.com/standardbeagle/codeindexd/internal/errtax"
)

// Status is an EditOperation's lifecycle state (spec.md §4.8 state
// machine).
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// FileStateSnapshot captures a file's identity at backup time, used to
// detect external modification before a rollback (spec.md §3.1).
type FileStateSnapshot struct {
	Path        string
	ContentHash uint64
	Size        int64
	ModTime     time.Time
	Valid       bool
}

// Operation is an EditOperation record (spec.md §3.1).
type Operation struct {
	OperationID      string
	FilePath         string
	OriginalContent  string
	NewContent       string
	Status           Status
	CreatedAt        time.Time
	MemorySize       int64
	Timeout          time.Duration
	FileStateAtStart FileStateSnapshot
	ErrorMessage     string
}

// Config controls the cache's caps (spec.md §6.4 / §4.8 defaults).
type Config struct {
	MaxMemoryMB          int
	MaxFileSizeMB        int
	MaxBackups           int
	BackupTimeoutSeconds int
	WarningThreshold     float64
}

// DefaultConfig returns spec.md §6.4's defaults (50, 10, 1000, 300, 0.8).
func DefaultConfig() Config {
	return Config{
		MaxMemoryMB:          50,
		MaxFileSizeMB:        10,
		MaxBackups:           1000,
		BackupTimeoutSeconds: 300,
		WarningThreshold:     0.8,
	}
}

// PressureLevel reports how close the cache is to its aggregate cap.
type PressureLevel int

const (
	PressureNone PressureLevel = iota
	PressureWarning
	PressureCritical
)

// Cache is the LRU-evicting backup store.
type Cache struct {
	mu         sync.Mutex
	cfg        Config
	byPath     map[string]*Operation
	order      []string // access order, oldest first
	bytesUsed  int64
	onWarning  func(MemorySnapshot)
	onCritical func(MemorySnapshot)
}

// New builds a Cache with cfg.
func New(cfg Config) *Cache {
	return &Cache{cfg: cfg, byPath: make(map[string]*Operation)}
}

// OnPressure registers callbacks fired from Stats when the cache's
// memory pressure level is Warning or Critical (spec.md §4.8's "monitor
// observes aggregate memory", supplemented from the original Python
// memory_monitor's threshold callbacks). Either callback may be nil.
func (c *Cache) OnPressure(warning, critical func(MemorySnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWarning = warning
	c.onCritical = critical
}

// MemorySnapshot reports process RSS, system-available memory, and the
// cache's current pressure level (spec.md's supplemented memory monitor
// signal).
type MemorySnapshot struct {
	ProcessRSSBytes      uint64
	SystemAvailableBytes uint64
	CacheBytesUsed       int64
	Level                PressureLevel
}

// Stats samples process RSS and system-available memory via gopsutil,
// pairs them with the cache's own pressure level, and fires any
// registered warning/critical callback. Sampling failures degrade to a
// zero-valued memory reading rather than propagating an error, matching
// contentcache's auto-sizing fallback behavior.
func (c *Cache) Stats() MemorySnapshot {
	snap := MemorySnapshot{Level: c.Pressure(), CacheBytesUsed: c.usedBytes()}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			snap.ProcessRSSBytes = info.RSS
		}
	} else {
		debug.Tracef("backup", "process memory sample failed: %v", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.SystemAvailableBytes = vm.Available
	} else {
		debug.Tracef("backup", "system memory sample failed: %v", err)
	}

	c.mu.Lock()
	warning, critical := c.onWarning, c.onCritical
	c.mu.Unlock()

	switch snap.Level {
	case PressureCritical:
		if critical != nil {
			critical(snap)
		}
	case PressureWarning:
		if warning != nil {
			warning(snap)
		}
	}

	return snap
}

func (c *Cache) usedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesUsed
}

// NewOperation constructs a pending EditOperation for path carrying
// originalContent and newContent, stamped with a fresh UUID (spec.md
// §3.1 operation_id) and the given timeout. memory_size is the combined
// bytes of original and new content (spec.md §3.1).
func NewOperation(path, originalContent, newContent string, snapshot FileStateSnapshot, timeout time.Duration) *Operation {
	return &Operation{
		OperationID:      uuid.NewString(),
		FilePath:         path,
		OriginalContent:  originalContent,
		NewContent:       newContent,
		Status:           StatusPending,
		CreatedAt:        time.Now(),
		MemorySize:       int64(len(originalContent)) + int64(len(newContent)),
		Timeout:          timeout,
		FileStateAtStart: snapshot,
	}
}

// AddBackup inserts op, evicting LRU entries as needed. Rejects outright
// if the operation alone exceeds max_file_size_mb (spec.md §4.8).
func (c *Cache) AddBackup(op *Operation) *errtax.CodeError {
	maxFileBytes := int64(c.cfg.MaxFileSizeMB) * 1024 * 1024
	if op.MemorySize > maxFileBytes {
		return errtax.New(errtax.BackupRefused, "backup.add", "file %s (%s) exceeds max_file_size_mb (%d MB)",
			op.FilePath, humanize.Bytes(uint64(op.MemorySize)), c.cfg.MaxFileSizeMB).WithPath(op.FilePath)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byPath[op.FilePath]; ok {
		c.removeLocked(op.FilePath)
		_ = old
	}

	maxBytes := int64(c.cfg.MaxMemoryMB) * 1024 * 1024
	for (c.bytesUsed+op.MemorySize > maxBytes || len(c.byPath) >= c.cfg.MaxBackups) && len(c.order) > 0 {
		c.evictOldestLocked()
	}

	if op.MemorySize > maxBytes {
		return errtax.New(errtax.MemoryLimitExceeded, "backup.add", "file %s (%s) exceeds aggregate max_memory_mb (%d MB) even after eviction",
			op.FilePath, humanize.Bytes(uint64(op.MemorySize)), c.cfg.MaxMemoryMB).WithPath(op.FilePath)
	}

	c.byPath[op.FilePath] = op
	c.order = append(c.order, op.FilePath)
	c.bytesUsed += op.MemorySize
	return nil
}

func (c *Cache) evictOldestLocked() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	if op, ok := c.byPath[oldest]; ok {
		c.bytesUsed -= op.MemorySize
		delete(c.byPath, oldest)
	}
}

// GetBackup promotes path to MRU and returns its Operation, or nil if
// absent.
func (c *Cache) GetBackup(path string) *Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.byPath[path]
	if !ok {
		return nil
	}
	c.promoteLocked(path)
	return op
}

func (c *Cache) promoteLocked(path string) {
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, path)
}

// RemoveBackup drops path's backup and reclaims its memory.
func (c *Cache) RemoveBackup(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(path)
}

func (c *Cache) removeLocked(path string) {
	if op, ok := c.byPath[path]; ok {
		c.bytesUsed -= op.MemorySize
		delete(c.byPath, path)
	}
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// CleanupExpired removes operations older than maxAge, returning how
// many were swept (spec.md §4.8 cleanup_expired).
func (c *Cache) CleanupExpired(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var expired []string
	for path, op := range c.byPath {
		if now.Sub(op.CreatedAt) > maxAge {
			expired = append(expired, path)
		}
	}
	for _, p := range expired {
		c.removeLocked(p)
	}
	return len(expired)
}

// ListBackups returns every currently-cached path, MRU last.
func (c *Cache) ListBackups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// MemoryUsage reports current bytes used and the configured cap.
func (c *Cache) MemoryUsage() (used, capBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesUsed, int64(c.cfg.MaxMemoryMB) * 1024 * 1024
}

// Pressure reports the cache's current memory-pressure level relative to
// warning_threshold (spec.md §4.8 monitor).
func (c *Cache) Pressure() PressureLevel {
	used, cap := c.MemoryUsage()
	if cap == 0 {
		return PressureNone
	}
	frac := float64(used) / float64(cap)
	switch {
	case frac >= 1.0:
		return PressureCritical
	case frac >= c.cfg.WarningThreshold:
		return PressureWarning
	default:
		return PressureNone
	}
}

// SetStatus transitions op's status, recording an error message for
// terminal failure states.
func SetStatus(op *Operation, status Status, errMsg string) {
	op.Status = status
	if errMsg != "" {
		op.ErrorMessage = errMsg
	}
}
