package coordlock

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures a blocked Lock call never leaks a goroutine past the
// test that unblocks it.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
