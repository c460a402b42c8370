//go:build !windows

package filelock

import (
	"os"
	"syscall"
)

// acquireOS takes a POSIX advisory flock on a sibling "<path>.lock" file,
// non-blocking (the retry loop lives in Manager.Acquire).
func (m *Manager) acquireOS(path string, kind Kind) (*os.File, string, error) {
	sp := sentinelPath(m.lockDir, path)

	file, err := os.OpenFile(sp, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, "", err
	}

	how := syscall.LOCK_EX
	if kind == Shared {
		how = syscall.LOCK_SH
	}

	if err := flockRetryEINTR(int(file.Fd()), how|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		return nil, "", err
	}

	return file, sp, nil
}

func (m *Manager) releaseOS(file *os.File, _ string) error {
	if file == nil {
		return nil
	}
	unlockErr := flockRetryEINTR(int(file.Fd()), syscall.LOCK_UN)
	closeErr := file.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000
	var err error
	for i := 0; i < maxEINTRRetries; i++ {
		err = syscall.Flock(fd, how)
		if err == nil || err != syscall.EINTR {
			return err
		}
	}
	return err
}
