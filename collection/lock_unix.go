//go:build unix

package collection

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an exclusive flock(2) on a dedicated lock file. The lock
// file is never replaced or removed while held.
type fileLock struct {
	f *os.File
}

func acquireLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("'%s': %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("flock '%s': %w", path, err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	errUnlock := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	errClose := l.f.Close()
	l.f = nil
	return errors.Join(errUnlock, errClose)
}
