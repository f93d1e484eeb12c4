package collection

import "fmt"

// Document is implemented by every type stored in a collection.
//
// Intersects is called with every other stored document before an insert
// or an update is accepted. It returns nil if the two documents can
// coexist; the returned error is the reason they can't (e.g. the email is
// already used by another user). It must be pure: no I/O, no side effects.
type Document[K comparable, T any] interface {
	PrimaryKey() K
	Intersects(other T) error
}

// Cloner is optionally implemented by documents with reference fields
// (slices, maps, pointers). Collections store and return Clone() copies so
// that mutating a returned document never changes the stored one. Without
// it a plain Go value copy is made.
type Cloner[T any] interface {
	Clone() T
}

func cloneDoc[T any](doc T) T {
	if c, ok := any(doc).(Cloner[T]); ok {
		return c.Clone()
	}
	return doc
}

// KeyString returns the canonical text form of a key: String() if the key
// implements fmt.Stringer, %v formatting otherwise.
// Directory collections use it as the file name.
func KeyString[K comparable](k K) string {
	if s, ok := any(k).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(k)
}
