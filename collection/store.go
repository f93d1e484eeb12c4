package collection

// Store is the operation set shared by all collections.
//
// Documents passed in and returned are copies: changing a returned document
// has no effect until it's passed back to Update.
//
// Collections returned by NewMemory, OpenFile and OpenDir assume a single
// owner and do no locking. Use NewShared to call them from many goroutines.
type Store[K comparable, T Document[K, T]] interface {
	Insert(doc T) error
	Update(doc T) error
	Delete(key K) error
	Filter(pred func(T) bool) []T
	Find(pred func(T) bool) (T, bool)
	Get(key K) (T, bool)
	Len() int
	Close() error
}
