package collection

import (
	"errors"
	"fmt"
)

// Kind classifies errors returned by collection operations
type Kind int

const (
	KindDuplicateKey Kind = iota + 1
	KindNotFound
	KindConflict
	KindIO
	KindSerialization
)

var (
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrIO            = errors.New("i/o error")
	ErrSerialization = errors.New("serialization error")

	// ErrClosed is returned by operations on a closed collection or handle
	ErrClosed = errors.New("collection is closed")
	// ErrLocked is returned by OpenFile when another owner has the file open
	ErrLocked = errors.New("collection is locked by another owner")
	// ErrInvalidOptions is returned by Open* for bad or inconsistent options
	ErrInvalidOptions = errors.New("invalid options")
	// ErrInvalidKey is returned when a key can't be used as a file name
	ErrInvalidKey = errors.New("key is not a valid file name")
	// ErrCorrupted is returned when stored data doesn't match the expected layout
	ErrCorrupted = errors.New("corrupted data")
)

func (k Kind) String() string {
	switch k {
	case KindDuplicateKey:
		return "duplicate key"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindIO:
		return "i/o"
	case KindSerialization:
		return "serialization"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) sentinel() error {
	switch k {
	case KindDuplicateKey:
		return ErrDuplicateKey
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindIO:
		return ErrIO
	case KindSerialization:
		return ErrSerialization
	}
	return nil
}

// Error is returned by all collection operations.
// errors.Is(err, ErrConflict) etc. match on Kind, errors.Unwrap returns
// the underlying cause (for KindConflict the document's reason).
type Error struct {
	Kind Kind
	// operation: "insert", "update", "delete", "open", "grow", "compact", "close"
	Op string
	// text form of the key of the document being changed, if any
	Key string
	// for KindConflict, text form of the key of the conflicting document
	With string
	Err  error
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.Kind.String()
	if e.Key != "" {
		s += " '" + e.Key + "'"
	}
	if e.With != "" {
		s += " with '" + e.With + "'"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the Kind of err or 0 if err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func ioError(op string, key string, err error) error {
	return &Error{Kind: KindIO, Op: op, Key: key, Err: err}
}

func serializationError(op string, key string, err error) error {
	return &Error{Kind: KindSerialization, Op: op, Key: key, Err: err}
}
