package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjk/docstore/u"
)

var (
	// ErrCancelled is returned by calls subsequent to Cancel()
	ErrCancelled = errors.New("cancelled")

	_ io.WriteCloser = &File{}
	_ io.WriterAt    = &File{}
)

// TempPattern is the suffix pattern of temporary files. Readers that scan
// a directory can use IsTemp to skip files left behind by a crash.
const TempPattern = ".tmp-*"

// File is written to a temporary file in the destination directory and
// renamed over the destination on Close. Readers of the destination never
// see a partially written file.
type File struct {
	dstPath string
	dir     string
	tmpFile *os.File
	tmpPath string
	err     error
}

// New creates new File with 0644 permissions
func New(path string) (*File, error) {
	return NewWithPerm(path, 0644)
}

// NewWithPerm creates new File. perm is applied to the temporary file and
// therefore to the destination after rename.
func NewWithPerm(path string, perm os.FileMode) (*File, error) {
	dir, fName := filepath.Split(path)
	if fName == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	tmpFile, err := os.CreateTemp(dir, fName+TempPattern)
	if err != nil {
		return nil, err
	}
	f := &File{
		dstPath: path,
		dir:     dir,
		tmpFile: tmpFile,
		tmpPath: tmpFile.Name(),
	}
	if err = tmpFile.Chmod(perm); err != nil {
		return nil, f.handleError(err)
	}
	return f, nil
}

// IsTemp returns true if name looks like a temporary file created by File
func IsTemp(name string) bool {
	return strings.Contains(filepath.Base(name), ".tmp-")
}

func (f *File) handleError(err error) error {
	if err == nil {
		return nil
	}
	// remember the first error
	if f.err == nil {
		f.err = err
	}
	_ = f.Close()
	return err
}

func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.Write(d)
	return n, f.handleError(err)
}

func (f *File) WriteAt(b []byte, off int64) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.WriteAt(b, off)
	return n, f.handleError(err)
}

func (f *File) alreadyClosed() bool {
	return f.tmpFile == nil
}

// Cancel removes the temp file if we didn't Close the file yet.
// Destination file is left untouched. Use it with defer to clean up
// on early returns; after Close it's a no-op.
func (f *File) Cancel() {
	if f == nil || f.alreadyClosed() {
		return
	}
	f.err = ErrCancelled
	_ = f.Close()
}

// Close syncs and closes the temporary file and renames it over the
// destination. Can be called multiple times, returns the first error.
func (f *File) Close() error {
	if f.alreadyClosed() {
		return f.err
	}
	tmpFile := f.tmpFile
	f.tmpFile = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmpFile.Sync()
	errClose := tmpFile.Close()

	didRename := false
	defer func() {
		if !didRename {
			_ = os.Remove(f.tmpPath)
		}
	}()

	if f.err != nil {
		return f.err
	}
	err := errSync
	if err == nil {
		err = errClose
	}
	if err == nil {
		err = os.Rename(f.tmpPath, f.dstPath)
		didRename = err == nil
		if didRename {
			u.SyncDir(f.dir)
		}
	}
	f.err = err
	return f.err
}

// WriteFile atomically replaces path with data
func WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := NewWithPerm(path, perm)
	if err != nil {
		return err
	}
	defer f.Cancel()
	if _, err = f.Write(data); err != nil {
		return err
	}
	return f.Close()
}
