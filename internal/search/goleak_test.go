package search

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures the errgroup-based parallel scan never leaks a worker
// goroutine past Search returning.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
