package collection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjk/docstore/atomicfile"
	"github.com/kjk/docstore/codec"
	"github.com/kjk/docstore/log"
	"github.com/kjk/docstore/u"
)

const DefaultExt = ".json"

type DirOptions struct {
	Dir string
	// default codec.Default
	Codec codec.Codec
	// file name extension, including the dot. Default ".json"
	Ext string
}

// DirCollection stores each document in its own file named after the key.
// Files are replaced atomically so a crash leaves either the old or the new
// version of a document.
type DirCollection[K comparable, T Document[K, T]] struct {
	dir    string
	ext    string
	codec  codec.Codec
	index  *Index[K, T, string]
	closed bool
}

// checkKeyFileName returns an error if key can't safely be a file name in a
// single directory
func checkKeyFileName(key string) error {
	if key == "" || key == "." || key == ".." {
		return fmt.Errorf("'%s': %w", key, ErrInvalidKey)
	}
	if strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) || strings.ContainsRune(key, os.PathSeparator) {
		return fmt.Errorf("'%s': %w", key, ErrInvalidKey)
	}
	if atomicfile.IsTemp(key) {
		return fmt.Errorf("'%s' looks like a temporary file: %w", key, ErrInvalidKey)
	}
	return nil
}

// OpenDir opens or creates a directory collection and loads all documents
// into memory
func OpenDir[K comparable, T Document[K, T]](opts DirOptions) (*DirCollection[K, T], error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: Dir is not set", ErrInvalidOptions)
	}
	if opts.Ext == "" {
		opts.Ext = DefaultExt
	}
	if !strings.HasPrefix(opts.Ext, ".") || strings.ContainsAny(opts.Ext, `/\`) {
		return nil, fmt.Errorf("%w: Ext '%s' must start with '.'", ErrInvalidOptions, opts.Ext)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for '%s': %w", opts.Dir, err)
	}
	if err = os.MkdirAll(dir, 0755); err != nil {
		return nil, ioError("open", "", err)
	}
	c := &DirCollection[K, T]{
		dir:   dir,
		ext:   opts.Ext,
		codec: opts.Codec,
		index: NewIndex[K, T, string](),
	}
	if err = c.load(); err != nil {
		return nil, err
	}
	log.Verbosef("docstore: opened dir '%s', %d documents\n", dir, c.index.Len())
	return c, nil
}

func (c *DirCollection[K, T]) load() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return ioError("open", "", err)
	}
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || atomicfile.IsTemp(name) || !strings.HasSuffix(name, c.ext) {
			continue
		}
		path := filepath.Join(c.dir, name)
		d, err := os.ReadFile(path)
		if err != nil {
			return ioError("open", "", err)
		}
		var doc T
		if err = c.codec.Unmarshal(d, &doc); err != nil {
			return serializationError("open", "", fmt.Errorf("'%s': %w", path, err))
		}
		k := doc.PrimaryKey()
		key := KeyString(k)
		if key+c.ext != name {
			err = fmt.Errorf("'%s' holds document with key '%s': %w", path, key, ErrCorrupted)
			return ioError("open", key, err)
		}
		c.index.Put(doc, path)
	}
	return nil
}

func (c *DirCollection[K, T]) docPath(key string) string {
	return filepath.Join(c.dir, key+c.ext)
}

func (c *DirCollection[K, T]) write(op string, doc T) (string, error) {
	key := KeyString(doc.PrimaryKey())
	if err := checkKeyFileName(key); err != nil {
		return "", ioError(op, key, err)
	}
	d, err := c.codec.Marshal(doc)
	if err != nil {
		return "", serializationError(op, key, err)
	}
	path := c.docPath(key)
	if err = atomicfile.WriteFile(path, d, 0644); err != nil {
		return "", ioError(op, key, err)
	}
	return path, nil
}

func (c *DirCollection[K, T]) Insert(doc T) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.index.CheckInsert(doc); err != nil {
		return err
	}
	path, err := c.write("insert", doc)
	if err != nil {
		return err
	}
	c.index.Put(doc, path)
	return nil
}

func (c *DirCollection[K, T]) Update(doc T) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.index.CheckUpdate(doc); err != nil {
		return err
	}
	path, err := c.write("update", doc)
	if err != nil {
		return err
	}
	c.index.Put(doc, path)
	return nil
}

// Delete removes the file of the document. A file already removed by
// someone else is not an error.
func (c *DirCollection[K, T]) Delete(k K) error {
	if c.closed {
		return ErrClosed
	}
	key := KeyString(k)
	path, ok := c.index.Location(k)
	if !ok {
		return &Error{Kind: KindNotFound, Op: "delete", Key: key}
	}
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ioError("delete", key, err)
	}
	u.SyncDir(c.dir)
	c.index.Remove(k)
	return nil
}

func (c *DirCollection[K, T]) Filter(pred func(T) bool) []T {
	return c.index.Filter(pred)
}

func (c *DirCollection[K, T]) Find(pred func(T) bool) (T, bool) {
	return c.index.Find(pred)
}

func (c *DirCollection[K, T]) Get(key K) (T, bool) {
	return c.index.Get(key)
}

func (c *DirCollection[K, T]) Len() int {
	return c.index.Len()
}

// Location returns the path of the file holding a document
func (c *DirCollection[K, T]) Location(key K) (string, bool) {
	return c.index.Location(key)
}

func (c *DirCollection[K, T]) Dir() string {
	return c.dir
}

// Close only marks the collection closed, files are written synchronously
func (c *DirCollection[K, T]) Close() error {
	if !c.closed {
		c.closed = true
		log.Verbosef("docstore: closed dir '%s'\n", c.dir)
	}
	return nil
}
