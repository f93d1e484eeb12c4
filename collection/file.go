package collection

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/kjk/docstore/atomicfile"
	"github.com/kjk/docstore/codec"
	"github.com/kjk/docstore/log"
)

const (
	DefaultMaxByteLength   = 128
	DefaultGrowthIncrement = 128
)

type FileOptions struct {
	// path of the data file. "<Path>.meta" and "<Path>.lock" are created next to it
	Path string
	// initial slot payload capacity, default 128.
	// Ignored when reopening a file that has a .meta sidecar.
	MaxByteLength int64
	// slot payload capacity grows by multiples of this, default 128
	GrowthIncrement int64
	// default codec.Default
	Codec codec.Codec
	Layout Layout
	// if true, will call file.Sync() after every write
	SyncWrite bool
}

// Slot is the location of a document in a flat file
type Slot struct {
	Offset int64
	Length int64
}

// FileCollection stores documents in a single file of fixed-length slots.
//
// Insert appends a slot, Update overwrites a slot in place and Delete
// blanks it. Blank slots are not reused until the file is rewritten by
// growth or Compact. When a document doesn't fit in a slot, the whole file
// is rewritten with bigger slots.
type FileCollection[K comparable, T Document[K, T]] struct {
	path            string
	codec           codec.Codec
	layout          Layout
	maxByteLength   int64
	growthIncrement int64
	syncWrite       bool

	file  *os.File
	lock  *fileLock
	index *Index[K, T, Slot]
	// end of file i.e. offset of the next inserted slot
	size int64
	// set when the in-memory state no longer matches the file and the
	// collection can't be used anymore
	failed error
	closed bool
}

func (c *FileCollection[K, T]) slotLength() int64 {
	return c.layout.SlotLength(c.maxByteLength)
}

// resolveFileOptions applies defaults and reconciles opts with a .meta sidecar
func resolveFileOptions(opts *FileOptions, meta *fileMeta) error {
	if opts.MaxByteLength < 0 || opts.GrowthIncrement < 0 {
		return fmt.Errorf("%w: negative MaxByteLength or GrowthIncrement", ErrInvalidOptions)
	}
	if opts.Layout < LayoutDefault || opts.Layout > LayoutPrefixed {
		return fmt.Errorf("%w: unknown layout %d", ErrInvalidOptions, int(opts.Layout))
	}
	if meta != nil {
		if opts.Layout != LayoutDefault && opts.Layout != meta.Layout {
			return fmt.Errorf("%w: layout %s doesn't match stored layout %s", ErrInvalidOptions, opts.Layout, meta.Layout)
		}
		opts.Layout = meta.Layout
		if opts.Codec == nil {
			c, ok := codec.ByName(meta.Codec)
			if !ok {
				return fmt.Errorf("%w: unknown stored codec '%s', provide one in FileOptions.Codec", ErrInvalidOptions, meta.Codec)
			}
			opts.Codec = c
		} else if opts.Codec.Name() != meta.Codec {
			return fmt.Errorf("%w: codec '%s' doesn't match stored codec '%s'", ErrInvalidOptions, opts.Codec.Name(), meta.Codec)
		}
		opts.MaxByteLength = meta.MaxByteLength
		if opts.GrowthIncrement == 0 {
			opts.GrowthIncrement = meta.GrowthIncrement
		}
		return nil
	}
	if opts.MaxByteLength == 0 {
		opts.MaxByteLength = DefaultMaxByteLength
	}
	if opts.GrowthIncrement == 0 {
		opts.GrowthIncrement = DefaultGrowthIncrement
	}
	if opts.Layout == LayoutDefault {
		opts.Layout = LayoutPadded
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Layout == LayoutPrefixed && opts.MaxByteLength > maxPrefixedLen {
		return fmt.Errorf("%w: MaxByteLength %d too large for prefixed layout", ErrInvalidOptions, opts.MaxByteLength)
	}
	return nil
}

// OpenFile opens or creates a flat-file collection and loads all documents
// into memory
func OpenFile[K comparable, T Document[K, T]](opts FileOptions) (*FileCollection[K, T], error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: Path is not set", ErrInvalidOptions)
	}
	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for '%s': %w", opts.Path, err)
	}
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, ioError("open", "", err)
	}
	lock, err := acquireLock(path + ".lock")
	if err != nil {
		return nil, ioError("open", "", err)
	}
	c, err := openFileLocked[K, T](path, opts, lock)
	if err != nil {
		_ = lock.release()
		return nil, err
	}
	log.Verbosef("docstore: opened '%s', %d documents, slot length %d\n", path, c.index.Len(), c.slotLength())
	return c, nil
}

func openFileLocked[K comparable, T Document[K, T]](path string, opts FileOptions, lock *fileLock) (*FileCollection[K, T], error) {
	meta, err := readMeta(path)
	if err != nil {
		return nil, ioError("open", "", err)
	}
	if err = resolveFileOptions(&opts, meta); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ioError("open", "", err)
	}
	c := &FileCollection[K, T]{
		path:            path,
		codec:           opts.Codec,
		layout:          opts.Layout,
		maxByteLength:   opts.MaxByteLength,
		growthIncrement: opts.GrowthIncrement,
		syncWrite:       opts.SyncWrite,
		file:            f,
		lock:            lock,
		index:           NewIndex[K, T, Slot](),
	}
	if err = c.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if meta == nil || meta.GrowthIncrement != c.growthIncrement {
		if err = c.writeMeta(); err != nil {
			_ = f.Close()
			return nil, ioError("open", "", err)
		}
	}
	return c, nil
}

func (c *FileCollection[K, T]) currentMeta() *fileMeta {
	return &fileMeta{
		MaxByteLength:   c.maxByteLength,
		GrowthIncrement: c.growthIncrement,
		Layout:          c.layout,
		Codec:           c.codec.Name(),
	}
}

func (c *FileCollection[K, T]) writeMeta() error {
	return writeMeta(c.path, c.currentMeta())
}

// load rebuilds the index by reading the file slot by slot
func (c *FileCollection[K, T]) load() error {
	st, err := c.file.Stat()
	if err != nil {
		return ioError("open", "", err)
	}
	slotLen := c.slotLength()
	size := st.Size()
	if size%slotLen != 0 {
		err = fmt.Errorf("file size %d is not a multiple of slot length %d: %w", size, slotLen, ErrCorrupted)
		return ioError("open", "", err)
	}
	r := bufio.NewReaderSize(io.NewSectionReader(c.file, 0, size), 64*1024)
	slot := make([]byte, slotLen)
	for off := int64(0); off < size; off += slotLen {
		if _, err = io.ReadFull(r, slot); err != nil {
			return ioError("open", "", fmt.Errorf("failed to read slot at offset %d: %w", off, err))
		}
		payload, err := c.layout.decode(slot)
		if err != nil {
			return ioError("open", "", fmt.Errorf("slot at offset %d: %w", off, err))
		}
		if payload == nil {
			continue
		}
		var doc T
		if err = c.codec.Unmarshal(payload, &doc); err != nil {
			return serializationError("open", "", fmt.Errorf("slot at offset %d: %w", off, err))
		}
		key := doc.PrimaryKey()
		if c.index.Has(key) {
			err = fmt.Errorf("key '%s' stored twice, second at offset %d: %w", KeyString(key), off, ErrCorrupted)
			return ioError("open", KeyString(key), err)
		}
		c.index.Put(doc, Slot{Offset: off, Length: slotLen})
	}
	c.size = size
	return nil
}

func (c *FileCollection[K, T]) checkUsable() error {
	if c.closed {
		return ErrClosed
	}
	return c.failed
}

func (c *FileCollection[K, T]) encode(op string, doc T) ([]byte, error) {
	key := KeyString(doc.PrimaryKey())
	payload, err := c.codec.Marshal(doc)
	if err != nil {
		return nil, serializationError(op, key, err)
	}
	if err = c.layout.checkPayload(payload); err != nil {
		return nil, serializationError(op, key, err)
	}
	return payload, nil
}

// grownMaxByteLength returns the smallest max + k*increment (k >= 1) that fits n bytes
func grownMaxByteLength(cur int64, increment int64, n int64) int64 {
	newMax := cur
	for n > newMax {
		newMax += increment
	}
	return newMax
}

func (c *FileCollection[K, T]) writeSlot(off int64, payload []byte) error {
	buf := make([]byte, c.slotLength())
	c.layout.encode(buf, payload)
	if _, err := c.file.WriteAt(buf, off); err != nil {
		return err
	}
	if c.syncWrite {
		return c.file.Sync()
	}
	return nil
}

// ensureFits grows the slots if payload doesn't fit
func (c *FileCollection[K, T]) ensureFits(op string, key string, payload []byte) error {
	n := int64(len(payload))
	if n <= c.maxByteLength {
		return nil
	}
	newMax := grownMaxByteLength(c.maxByteLength, c.growthIncrement, n)
	if c.layout == LayoutPrefixed && newMax > maxPrefixedLen {
		return serializationError(op, key, fmt.Errorf("document of %d bytes is too large", n))
	}
	return c.rewrite("grow", newMax)
}

// Insert appends doc in a new slot at the end of the file
func (c *FileCollection[K, T]) Insert(doc T) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	if err := c.index.CheckInsert(doc); err != nil {
		return err
	}
	key := KeyString(doc.PrimaryKey())
	payload, err := c.encode("insert", doc)
	if err != nil {
		return err
	}
	if err = c.ensureFits("insert", key, payload); err != nil {
		return err
	}
	off := c.size
	if err = c.writeSlot(off, payload); err != nil {
		// don't leave a partial slot at the end
		_ = c.file.Truncate(off)
		return ioError("insert", key, err)
	}
	c.size = off + c.slotLength()
	c.index.Put(doc, Slot{Offset: off, Length: c.slotLength()})
	return nil
}

// Update overwrites the slot of the document with the same key.
// Only that slot is written unless doc needs bigger slots.
func (c *FileCollection[K, T]) Update(doc T) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	if err := c.index.CheckUpdate(doc); err != nil {
		return err
	}
	k := doc.PrimaryKey()
	key := KeyString(k)
	payload, err := c.encode("update", doc)
	if err != nil {
		return err
	}
	if err = c.ensureFits("update", key, payload); err != nil {
		return err
	}
	// growth changes locations
	loc, _ := c.index.Location(k)
	if err = c.writeSlot(loc.Offset, payload); err != nil {
		return ioError("update", key, err)
	}
	c.index.Put(doc, loc)
	return nil
}

// Delete blanks the slot of the document. File size doesn't change.
func (c *FileCollection[K, T]) Delete(k K) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	key := KeyString(k)
	loc, ok := c.index.Location(k)
	if !ok {
		return &Error{Kind: KindNotFound, Op: "delete", Key: key}
	}
	if err := c.writeSlot(loc.Offset, nil); err != nil {
		return ioError("delete", key, err)
	}
	c.index.Remove(k)
	return nil
}

// Compact rewrites the file without blank slots
func (c *FileCollection[K, T]) Compact() error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	if c.size == int64(c.index.Len())*c.slotLength() {
		return nil
	}
	return c.rewrite("compact", c.maxByteLength)
}

// rewrite writes all documents into a new file with slots of newMax and
// replaces the data file with it. Until the rename the old file and the
// index are untouched so a failure changes nothing.
func (c *FileCollection[K, T]) rewrite(op string, newMax int64) error {
	type located struct {
		doc T
		off int64
	}
	docs := make([]located, 0, c.index.Len())
	c.index.Each(func(doc T, loc Slot) bool {
		docs = append(docs, located{doc: doc, off: loc.Offset})
		return true
	})
	// keep the relative order of slots
	sort.Slice(docs, func(i, j int) bool { return docs[i].off < docs[j].off })

	newSlotLen := c.layout.SlotLength(newMax)
	af, err := atomicfile.New(c.path)
	if err != nil {
		return ioError(op, "", err)
	}
	defer af.Cancel()

	w := bufio.NewWriterSize(af, 64*1024)
	slot := make([]byte, newSlotLen)
	for i := range docs {
		doc := docs[i].doc
		key := KeyString(doc.PrimaryKey())
		payload, err := c.encode(op, doc)
		if err != nil {
			return err
		}
		if int64(len(payload)) > newMax {
			return serializationError(op, key, fmt.Errorf("document of %d bytes doesn't fit in %d", len(payload), newMax))
		}
		c.layout.encode(slot, payload)
		if _, err = w.Write(slot); err != nil {
			return ioError(op, key, err)
		}
		docs[i].off = int64(i) * newSlotLen
	}
	if err = w.Flush(); err != nil {
		return ioError(op, "", err)
	}
	if err = af.Close(); err != nil {
		return ioError(op, "", err)
	}

	// the data file is now the new one, in-memory state must follow it
	f, err := os.OpenFile(c.path, os.O_RDWR, 0644)
	if err != nil {
		c.failed = ioError(op, "", fmt.Errorf("failed to reopen after rewrite: %w", err))
		return c.failed
	}
	_ = c.file.Close()
	c.file = f
	oldMax := c.maxByteLength
	c.maxByteLength = newMax
	for _, d := range docs {
		c.index.SetLocation(d.doc.PrimaryKey(), Slot{Offset: d.off, Length: newSlotLen})
	}
	c.size = int64(len(docs)) * newSlotLen

	log.Verbosef("docstore: %s '%s', max_byte_length %d => %d, %d documents\n", op, c.path, oldMax, newMax, len(docs))
	log.Event("docstore."+op, "path", c.path, "from", oldMax, "to", newMax, "docs", len(docs))

	if newMax != oldMax {
		if err = c.writeMeta(); err != nil {
			return ioError(op, "", fmt.Errorf("data file rewritten but failed to update '%s': %w", metaPath(c.path), err))
		}
	}
	return nil
}

func (c *FileCollection[K, T]) Filter(pred func(T) bool) []T {
	return c.index.Filter(pred)
}

func (c *FileCollection[K, T]) Find(pred func(T) bool) (T, bool) {
	return c.index.Find(pred)
}

func (c *FileCollection[K, T]) Get(key K) (T, bool) {
	return c.index.Get(key)
}

func (c *FileCollection[K, T]) Len() int {
	return c.index.Len()
}

// Location returns the slot of a document
func (c *FileCollection[K, T]) Location(key K) (Slot, bool) {
	return c.index.Location(key)
}

// MaxByteLength is the current slot payload capacity
func (c *FileCollection[K, T]) MaxByteLength() int64 {
	return c.maxByteLength
}

func (c *FileCollection[K, T]) SlotLength() int64 {
	return c.slotLength()
}

func (c *FileCollection[K, T]) Path() string {
	return c.path
}

// Close closes the data file and releases the lock. It's a no-op if called
// again.
func (c *FileCollection[K, T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var errSync error
	if c.failed == nil {
		errSync = c.file.Sync()
	}
	errClose := c.file.Close()
	errLock := c.lock.release()
	log.Verbosef("docstore: closed '%s'\n", c.path)
	if err := errors.Join(errSync, errClose, errLock); err != nil {
		return ioError("close", "", err)
	}
	return nil
}
