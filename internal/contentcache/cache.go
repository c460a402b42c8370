// Package contentcache implements the File-Content Cache (spec.md §4.6,
// C6): a bounded LRU of line-split file contents, keyed by path and
// invalidated by content-hash mismatch or explicit Invalidate calls from
// the Atomic Edit Engine after a write.
package contentcache

import (
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/standardbeagle/codeindexd/internal/debug"
)

// largeFileThreshold is the size above which the hash strategy falls back
// to metadata-only fingerprinting (spec.md §4.6 "files ≥ 10 KiB").
const largeFileThreshold = 10 * 1024

const recentWindow = 10

// Config controls cache sizing (spec.md §6.4 content_cache_* options).
// Zero fields are auto-sized from system memory in New.
type Config struct {
	MaxFiles          int
	MaxMemoryBytes    int64
	CleanupThreshold  float64 // fraction of either cap that triggers eviction
}

// Entry is a single cached file (spec.md §3.1 CacheEntry).
type Entry struct {
	Path           string
	Lines          []string
	ContentHash    uint64
	LastAccess     time.Time
	AccessCount    int64
	RecentAccesses []time.Time
	bytes          int64
}

// Cache is the bounded LRU. Its own mutex is distinct from, and never
// held while waiting on, the engine-wide coordination lock (spec.md §5's
// lock-ordering rule): callers must never acquire the coordination lock
// after taking this one.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*Entry
	order   []string // unused; recency is tracked by Entry.LastAccess
	bytes   int64
	reqs    int64
}

// New builds a Cache. A zero Config auto-sizes from system memory
// (spec.md §4.6: "roughly 400 entries per GB of total RAM... 20% of
// system memory"), matching the original Python implementation's
// psutil-based sizing via gopsutil.
func New(cfg Config) *Cache {
	if cfg.MaxFiles <= 0 || cfg.MaxMemoryBytes <= 0 {
		autoFiles, autoBytes := autoSize()
		if cfg.MaxFiles <= 0 {
			cfg.MaxFiles = autoFiles
		}
		if cfg.MaxMemoryBytes <= 0 {
			cfg.MaxMemoryBytes = autoBytes
		}
	}
	if cfg.CleanupThreshold <= 0 || cfg.CleanupThreshold > 1 {
		cfg.CleanupThreshold = 0.9
	}
	return &Cache{cfg: cfg, entries: make(map[string]*Entry)}
}

const (
	minAutoFiles   = 100
	maxAutoFiles   = 5000
	minAutoMemMB   = 50
	maxAutoMemMB   = 1024
	filesPerGB     = 400
	memFractionPct = 0.20
)

func autoSize() (int, int64) {
	files := minAutoFiles
	memMB := int64(minAutoMemMB)

	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		debug.Tracef("contentcache", "system memory detection failed, using floor defaults: %v", err)
		return files, memMB * 1024 * 1024
	}

	totalGB := float64(vm.Total) / (1024 * 1024 * 1024)
	files = clampInt(int(totalGB*filesPerGB), minAutoFiles, maxAutoFiles)

	memMB = clampInt64(int64(float64(vm.Total)*memFractionPct/(1024*1024)), minAutoMemMB, maxAutoMemMB)

	return files, memMB * 1024 * 1024
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GetFileLines returns the line-split content of path, reading and
// caching it on a miss or content-hash mismatch (spec.md §4.6).
func (c *Cache) GetFileLines(path string) ([]string, error) {
	c.mu.Lock()
	c.reqs++
	c.mu.Unlock()

	fp, err := fingerprint(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if e, ok := c.entries[path]; ok && e.ContentHash == fp {
		c.touch(e)
		lines := e.Lines
		c.mu.Unlock()
		return lines, nil
	}
	c.mu.Unlock()

	lines, _, size, err := loadLines(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[path]; ok {
		c.bytes -= old.bytes
	}
	e := &Entry{
		Path:        path,
		Lines:       lines,
		ContentHash: fp,
		bytes:       size,
	}
	c.touch(e)
	c.entries[path] = e
	c.bytes += size

	c.evictIfNeededLocked(0.7)
	return lines, nil
}

func (c *Cache) touch(e *Entry) {
	now := time.Now()
	e.LastAccess = now
	e.AccessCount++
	e.RecentAccesses = append(e.RecentAccesses, now)
	if len(e.RecentAccesses) > recentWindow {
		e.RecentAccesses = e.RecentAccesses[len(e.RecentAccesses)-recentWindow:]
	}
}

// Invalidate drops path from the cache (called by the Atomic Edit Engine
// after a successful write, spec.md's data-flow summary).
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		c.bytes -= e.bytes
		delete(c.entries, path)
	}
}

// Stats reports current usage for observability and the invariants in
// spec.md §8.1.
type Stats struct {
	Entries int
	Bytes   int64
	Requests int64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Bytes: c.bytes, Requests: c.reqs}
}

// MaybeEvictForMemoryPressure runs a more aggressive eviction pass
// (target 50% of cap, or 30% under critical pressure) when an external
// system-memory check signals pressure (spec.md §4.6 step 5).
func (c *Cache) MaybeEvictForMemoryPressure(critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if critical {
		c.evictIfNeededLocked(0.3)
	} else {
		c.evictIfNeededLocked(0.5)
	}
}

func (c *Cache) evictIfNeededLocked(target float64) {
	overFiles := float64(len(c.entries)) >= float64(c.cfg.MaxFiles)*c.cfg.CleanupThreshold
	overBytes := float64(c.bytes) >= float64(c.cfg.MaxMemoryBytes)*c.cfg.CleanupThreshold
	if !overFiles && !overBytes {
		return
	}

	type scored struct {
		path  string
		score float64
	}
	now := time.Now()
	scores := make([]scored, 0, len(c.entries))
	for p, e := range c.entries {
		scores = append(scores, scored{path: p, score: evictionScore(e, now)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	targetFiles := int(float64(c.cfg.MaxFiles) * target)
	targetBytes := int64(float64(c.cfg.MaxMemoryBytes) * target)

	for _, s := range scores {
		if len(c.entries) <= targetFiles && c.bytes <= targetBytes {
			break
		}
		e := c.entries[s.path]
		c.bytes -= e.bytes
		delete(c.entries, s.path)
	}
}

// evictionScore implements spec.md §4.6's weighted eviction policy:
// higher score = more evictable. age_hours + 1/access_count minus a
// pattern bonus for entries accessed at a regular interval.
func evictionScore(e *Entry, now time.Time) float64 {
	ageHours := now.Sub(e.LastAccess).Hours()
	accessTerm := 1.0 / float64(maxInt64(e.AccessCount, 1))
	return ageHours + accessTerm - patternBonus(e.RecentAccesses, now)
}

func patternBonus(accesses []time.Time, now time.Time) float64 {
	if len(accesses) < 3 {
		return 0
	}
	intervals := make([]float64, 0, len(accesses)-1)
	for i := 1; i < len(accesses); i++ {
		intervals = append(intervals, accesses[i].Sub(accesses[i-1]).Seconds())
	}
	mean := meanOf(intervals)
	if mean <= 0 {
		return 0
	}
	variance := varianceOf(intervals, mean)

	lastGap := now.Sub(accesses[len(accesses)-1]).Seconds()
	withinExpectedGap := lastGap <= 2*mean
	lowVariance := variance < (mean*mean)/2

	if withinExpectedGap && lowVariance {
		return 2.0
	}
	return 0
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func varianceOf(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return sumSq / float64(len(xs))
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// fingerprint returns the content-hash-or-metadata fingerprint used to
// detect a cache entry gone stale, per spec.md §4.6's hash strategy.
func fingerprint(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() >= largeFileThreshold {
		return metadataHash(path, info.Size(), info.ModTime().UnixNano()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

func metadataHash(path string, size, mtimeNano int64) uint64 {
	var h xxhash.Digest
	h.Reset()
	h.WriteString(path)
	var buf [16]byte
	putInt64(buf[0:8], size)
	putInt64(buf[8:16], mtimeNano)
	h.Write(buf[:])
	return h.Sum64()
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func loadLines(path string) (lines []string, hash uint64, size int64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, err
	}
	text := sanitizeUTF8(data)
	split := splitNoTrailingNewline(text)
	hash = xxhash.Sum64(data)
	return split, hash, int64(len(data)), nil
}

func splitNoTrailingNewline(text string) []string {
	if text == "" {
		return []string{}
	}
	trimmed := text
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	out := []string{}
	start := 0
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] == '\n' {
			line := trimmed[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			out = append(out, line)
			start = i + 1
		}
	}
	last := trimmed[start:]
	if len(last) > 0 && last[len(last)-1] == '\r' {
		last = last[:len(last)-1]
	}
	out = append(out, last)
	return out
}

// sanitizeUTF8 replaces invalid byte sequences with the Unicode
// replacement character, matching spec.md §4.6's "read UTF-8, replace on
// error" directive.
func sanitizeUTF8(data []byte) string {
	s := string(data)
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
