package filelock

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures the flock-retry backoff loop never leaks a goroutine
// across tests. The signal-cleanup goroutine started by registerCleanup
// waits for a signal for the life of the process, so it is ignored along
// with the os/signal loop it relies on.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("os/signal.loop"),
		goleak.IgnoreTopFunction("github.com/standardbeagle/codeindexd/internal/filelock.registerCleanup.func1.1"),
	)
}
