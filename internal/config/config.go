// Package config loads codeindexd's configuration: hard-coded defaults,
// an optional codeindexd.kdl file at the project root, and environment
// variable overrides layered on top, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// ConfigFileName is the recognized config file leaf at the project root.
const ConfigFileName = "codeindexd.kdl"

// Config aggregates every recognized option from spec.md §6.4 plus the
// ambient additions in SPEC_FULL.md §1.2.
type Config struct {
	Backup  Backup
	Lock    Lock
	Cache   Cache
	Search  Search
	Walk    Walk
	Logging Logging
}

// Backup mirrors the Backup Cache configuration (C8).
type Backup struct {
	MaxMemoryMB          int
	MaxFileSizeMB        int
	MaxBackups           int
	BackupTimeoutSeconds int
	WarningThreshold     float64
}

// Lock mirrors the File Lock Manager configuration (C9).
type Lock struct {
	TimeoutSeconds int
}

// Cache mirrors the File-Content Cache configuration (C6). Zero values
// mean "auto-size from system memory"; see internal/contentcache.
type Cache struct {
	MaxFiles      int
	MaxMemoryMB   int
	CleanupThresh float64
}

// Search mirrors C7 tuning knobs. ParallelThreshold is loaded from the
// config file and environment but is not passed to the search engine,
// which uses its own fixed threshold of 50 files.
type Search struct {
	ParallelThreshold int
}

// Walk mirrors C1 tuning knobs.
type Walk struct {
	ExcludeDirs      []string
	RespectGitignore bool
}

// Logging holds the logging options (SPEC_FULL.md §1.1). They are loaded
// from the config file and environment; the CLI logger in cmd/codeindexd
// does not read them and always writes console output to stderr.
type Logging struct {
	Level  string
	Format string // "json", "console", or "auto"
}

// Default returns the hard-coded defaults from spec.md §6.4.
func Default() *Config {
	return &Config{
		Backup: Backup{
			MaxMemoryMB:          50,
			MaxFileSizeMB:        10,
			MaxBackups:           1000,
			BackupTimeoutSeconds: 300,
			WarningThreshold:     0.8,
		},
		Lock: Lock{TimeoutSeconds: 30},
		Cache: Cache{
			MaxFiles:      0,
			MaxMemoryMB:   0,
			CleanupThresh: 0.9,
		},
		Search: Search{ParallelThreshold: 50},
		Walk: Walk{
			ExcludeDirs:      append([]string(nil), defaultExcludeDirs...),
			RespectGitignore: true,
		},
		Logging: Logging{Level: "info", Format: "auto"},
	}
}

var defaultExcludeDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "target", "dist", "build", "out",
	".venv", "venv", "__pycache__",
	".idea", ".vscode",
	".cache", ".next", ".nuxt",
}

// Load builds a Config for projectRoot: defaults, then codeindexd.kdl if
// present, then CODEINDEXD_* environment variable overrides.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	kdlPath := filepath.Join(projectRoot, ConfigFileName)
	if data, err := os.ReadFile(kdlPath); err == nil {
		if err := applyKDL(cfg, string(data)); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", kdlPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", kdlPath, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyKDL(cfg *Config, content string) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return err
	}
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "backup":
			for _, cn := range n.Children {
				assignInt(cn, "max_memory_mb", &cfg.Backup.MaxMemoryMB)
				assignInt(cn, "max_file_size_mb", &cfg.Backup.MaxFileSizeMB)
				assignInt(cn, "max_backups", &cfg.Backup.MaxBackups)
				assignInt(cn, "timeout_seconds", &cfg.Backup.BackupTimeoutSeconds)
				assignFloat(cn, "warning_threshold", &cfg.Backup.WarningThreshold)
			}
		case "lock":
			for _, cn := range n.Children {
				assignInt(cn, "timeout_seconds", &cfg.Lock.TimeoutSeconds)
			}
		case "cache":
			for _, cn := range n.Children {
				assignInt(cn, "max_files", &cfg.Cache.MaxFiles)
				assignInt(cn, "max_memory_mb", &cfg.Cache.MaxMemoryMB)
				assignFloat(cn, "cleanup_threshold", &cfg.Cache.CleanupThresh)
			}
		case "search":
			for _, cn := range n.Children {
				assignInt(cn, "parallel_threshold", &cfg.Search.ParallelThreshold)
			}
		case "walk":
			for _, cn := range n.Children {
				if nodeName(cn) == "exclude_dirs" {
					cfg.Walk.ExcludeDirs = append(cfg.Walk.ExcludeDirs, collectStringArgs(cn)...)
				}
				assignBool(cn, "respect_gitignore", &cfg.Walk.RespectGitignore)
			}
		case "logging":
			for _, cn := range n.Children {
				assignString(cn, "level", &cfg.Logging.Level)
				assignString(cn, "format", &cfg.Logging.Format)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	envInt("CODEINDEXD_MAX_MEMORY_MB", &cfg.Backup.MaxMemoryMB)
	envInt("CODEINDEXD_MAX_FILE_SIZE_MB", &cfg.Backup.MaxFileSizeMB)
	envInt("CODEINDEXD_MAX_BACKUPS", &cfg.Backup.MaxBackups)
	envInt("CODEINDEXD_BACKUP_TIMEOUT_SECONDS", &cfg.Backup.BackupTimeoutSeconds)
	envFloat("CODEINDEXD_WARNING_THRESHOLD", &cfg.Backup.WarningThreshold)
	envInt("CODEINDEXD_LOCK_TIMEOUT_SECONDS", &cfg.Lock.TimeoutSeconds)
	envInt("CODEINDEXD_CONTENT_CACHE_MAX_FILES", &cfg.Cache.MaxFiles)
	envInt("CODEINDEXD_CONTENT_CACHE_MAX_MEMORY_MB", &cfg.Cache.MaxMemoryMB)
	envInt("CODEINDEXD_PARALLEL_SEARCH_THRESHOLD", &cfg.Search.ParallelThreshold)
	envString("CODEINDEXD_LOG_LEVEL", &cfg.Logging.Level)
	envString("CODEINDEXD_LOG_FORMAT", &cfg.Logging.Format)
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// --- KDL document helpers (grounded on the teacher's kdl_config.go shape) ---

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	b, ok := n.Arguments[0].Value.(bool)
	return b, ok
}

func collectStringArgs(n *document.Node) []string {
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func assignString(n *document.Node, target string, dst *string) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			*dst = s
		}
	}
}

func assignInt(n *document.Node, target string, dst *int) {
	if nodeName(n) == target {
		if v, ok := firstIntArg(n); ok {
			*dst = v
		}
	}
}

func assignFloat(n *document.Node, target string, dst *float64) {
	if nodeName(n) == target {
		if v, ok := firstFloatArg(n); ok {
			*dst = v
		}
	}
}

func assignBool(n *document.Node, target string, dst *bool) {
	if nodeName(n) == target {
		if v, ok := firstBoolArg(n); ok {
			*dst = v
		}
	}
}
