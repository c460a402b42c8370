package filelock

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	cleanupOnce sync.Once
	registered  []*Manager
	registerMu  sync.Mutex
)

// registerCleanup arranges for m.ReleaseAll to run on SIGINT/SIGTERM, so
// an abnormal process exit still releases held OS-level locks (spec.md
// §4.9: "the process registers a cleanup hook so abnormal exit releases
// all held locks").
func registerCleanup(m *Manager) {
	registerMu.Lock()
	registered = append(registered, m)
	registerMu.Unlock()

	cleanupOnce.Do(func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			registerMu.Lock()
			managers := append([]*Manager(nil), registered...)
			registerMu.Unlock()
			for _, mgr := range managers {
				mgr.ReleaseAll()
			}
			signal.Stop(sigCh)
			os.Exit(1)
		}()
	})
}
