package collection

// MemoryCollection keeps documents only in memory
type MemoryCollection[K comparable, T Document[K, T]] struct {
	index  *Index[K, T, struct{}]
	closed bool
}

func NewMemory[K comparable, T Document[K, T]]() *MemoryCollection[K, T] {
	return &MemoryCollection[K, T]{
		index: NewIndex[K, T, struct{}](),
	}
}

func (c *MemoryCollection[K, T]) Insert(doc T) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.index.CheckInsert(doc); err != nil {
		return err
	}
	c.index.Put(doc, struct{}{})
	return nil
}

func (c *MemoryCollection[K, T]) Update(doc T) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.index.CheckUpdate(doc); err != nil {
		return err
	}
	c.index.Put(doc, struct{}{})
	return nil
}

func (c *MemoryCollection[K, T]) Delete(key K) error {
	if c.closed {
		return ErrClosed
	}
	if !c.index.Remove(key) {
		return &Error{Kind: KindNotFound, Op: "delete", Key: KeyString(key)}
	}
	return nil
}

func (c *MemoryCollection[K, T]) Filter(pred func(T) bool) []T {
	return c.index.Filter(pred)
}

func (c *MemoryCollection[K, T]) Find(pred func(T) bool) (T, bool) {
	return c.index.Find(pred)
}

func (c *MemoryCollection[K, T]) Get(key K) (T, bool) {
	return c.index.Get(key)
}

func (c *MemoryCollection[K, T]) Len() int {
	return c.index.Len()
}

// Close drops all documents
func (c *MemoryCollection[K, T]) Close() error {
	c.closed = true
	c.index = NewIndex[K, T, struct{}]()
	return nil
}
