package collection

type entry[K comparable, T any, L any] struct {
	key K
	doc T
	loc L
	// position in Index.list
	pos int
}

// Index is the authoritative in-memory mapping from primary key to document
// and, for persisted collections, its location on disk (L).
//
// Scan order is the order of an internal slice. It's stable between
// mutations but a delete moves the last entry into the freed position.
// Index is not safe for concurrent mutation.
type Index[K comparable, T Document[K, T], L any] struct {
	byKey map[K]*entry[K, T, L]
	list  []*entry[K, T, L]
}

func NewIndex[K comparable, T Document[K, T], L any]() *Index[K, T, L] {
	return &Index[K, T, L]{
		byKey: map[K]*entry[K, T, L]{},
	}
}

func (ix *Index[K, T, L]) Len() int {
	return len(ix.list)
}

func (ix *Index[K, T, L]) Has(key K) bool {
	_, ok := ix.byKey[key]
	return ok
}

// Get returns a copy of the document with a given key
func (ix *Index[K, T, L]) Get(key K) (T, bool) {
	e, ok := ix.byKey[key]
	if !ok {
		var zero T
		return zero, false
	}
	return cloneDoc(e.doc), true
}

func (ix *Index[K, T, L]) Location(key K) (L, bool) {
	e, ok := ix.byKey[key]
	if !ok {
		var zero L
		return zero, false
	}
	return e.loc, true
}

// Put inserts or replaces a document. A copy of doc is stored.
func (ix *Index[K, T, L]) Put(doc T, loc L) {
	key := doc.PrimaryKey()
	doc = cloneDoc(doc)
	if e, ok := ix.byKey[key]; ok {
		e.doc = doc
		e.loc = loc
		return
	}
	e := &entry[K, T, L]{
		key: key,
		doc: doc,
		loc: loc,
		pos: len(ix.list),
	}
	ix.byKey[key] = e
	ix.list = append(ix.list, e)
}

func (ix *Index[K, T, L]) SetLocation(key K, loc L) {
	if e, ok := ix.byKey[key]; ok {
		e.loc = loc
	}
}

// Remove returns false if key wasn't in the index
func (ix *Index[K, T, L]) Remove(key K) bool {
	e, ok := ix.byKey[key]
	if !ok {
		return false
	}
	delete(ix.byKey, key)
	last := len(ix.list) - 1
	if e.pos != last {
		moved := ix.list[last]
		moved.pos = e.pos
		ix.list[e.pos] = moved
	}
	ix.list[last] = nil
	ix.list = ix.list[:last]
	return true
}

// Filter returns copies of all documents for which pred returns true.
// pred must not modify the document it's given.
func (ix *Index[K, T, L]) Filter(pred func(T) bool) []T {
	var res []T
	for _, e := range ix.list {
		if pred(e.doc) {
			res = append(res, cloneDoc(e.doc))
		}
	}
	return res
}

// Find returns a copy of the first document, in scan order, for which pred
// returns true. If many match, any of them may be returned.
func (ix *Index[K, T, L]) Find(pred func(T) bool) (T, bool) {
	for _, e := range ix.list {
		if pred(e.doc) {
			return cloneDoc(e.doc), true
		}
	}
	var zero T
	return zero, false
}

// Each calls fn with stored documents (not copies) until fn returns false
func (ix *Index[K, T, L]) Each(fn func(doc T, loc L) bool) {
	for _, e := range ix.list {
		if !fn(e.doc, e.loc) {
			return
		}
	}
}

func (ix *Index[K, T, L]) Keys() []K {
	res := make([]K, len(ix.list))
	for i, e := range ix.list {
		res[i] = e.key
	}
	return res
}

// CheckInsert validates doc as a new document: its key must be unused and
// it must not intersect any stored document
func (ix *Index[K, T, L]) CheckInsert(doc T) error {
	key := doc.PrimaryKey()
	if ix.Has(key) {
		return &Error{Kind: KindDuplicateKey, Op: "insert", Key: KeyString(key)}
	}
	return ix.checkConflicts("insert", doc)
}

// CheckUpdate validates doc as a replacement of the stored document with
// the same key. The stored version is excluded from the conflict check.
func (ix *Index[K, T, L]) CheckUpdate(doc T) error {
	key := doc.PrimaryKey()
	if !ix.Has(key) {
		return &Error{Kind: KindNotFound, Op: "update", Key: KeyString(key)}
	}
	return ix.checkConflicts("update", doc)
}

func (ix *Index[K, T, L]) checkConflicts(op string, doc T) error {
	key := doc.PrimaryKey()
	for _, e := range ix.list {
		if e.key == key {
			continue
		}
		if err := doc.Intersects(e.doc); err != nil {
			return &Error{
				Kind: KindConflict,
				Op:   op,
				Key:  KeyString(key),
				With: KeyString(e.key),
				Err:  err,
			}
		}
	}
	return nil
}
