// Package debug provides a toggleable trace sink for hot-path diagnostics
// (parse timing, cache eviction decisions, lock retries). It is off by
// default and must never be enabled while serving the MCP stdio transport,
// since writes to stdout would corrupt the protocol stream.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// StdioMode tracks whether the process is serving MCP over stdio. Set by
// main before starting the server; suppresses all trace output regardless
// of Enable.
var StdioMode = false

var (
	mu      sync.Mutex
	enabled bool
	out     io.Writer
	file    *os.File
)

// Enable turns tracing on or off.
func Enable(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v
}

// Enabled reports whether tracing is currently active.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled && !StdioMode
}

// SetOutput directs trace output at w. Passing nil disables output without
// clearing the enabled flag.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// OpenLogFile opens (creating if needed) a trace log file and directs
// output there. The caller should defer Close when done.
func OpenLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening debug log %s: %w", path, err)
	}
	mu.Lock()
	file = f
	out = f
	mu.Unlock()
	return nil
}

// Close releases the trace log file, if one was opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	out = nil
	return err
}

// Tracef writes a timestamped trace line when tracing is enabled. It is a
// no-op (and allocation-free beyond the format check) when disabled.
func Tracef(component, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled || StdioMode || out == nil {
		return
	}
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(out, "[%s] %s: %s\n", ts, component, fmt.Sprintf(format, args...))
}
