//go:build !unix

package collection

// no flock outside of unix; single ownership is up to the caller
type fileLock struct{}

func acquireLock(path string) (*fileLock, error) {
	return &fileLock{}, nil
}

func (l *fileLock) release() error {
	return nil
}
