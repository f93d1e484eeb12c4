package collection

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Layout is the encoding of a record inside a fixed-length slot of a
// flat-file collection
type Layout int

const (
	// LayoutDefault is LayoutPadded for new files and whatever the .meta
	// sidecar says for existing files
	LayoutDefault Layout = iota
	// LayoutPadded: payload, ' ' fill up to max_byte_length, '\n'.
	// Slot length is max_byte_length + 1.
	// Payloads that are empty or end with ' ' are rejected.
	LayoutPadded
	// LayoutPrefixed: 4 byte big-endian payload length, payload, 0 fill, '\n'.
	// Slot length is max_byte_length + 5. Payload can hold any non-empty bytes.
	LayoutPrefixed
)

const (
	fillByte       = ' '
	delimiter      = '\n'
	prefixLen      = 4
	maxPrefixedLen = math.MaxUint32
)

func (l Layout) String() string {
	switch l {
	case LayoutDefault:
		return "default"
	case LayoutPadded:
		return "padded"
	case LayoutPrefixed:
		return "prefixed"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

func parseLayout(s string) (Layout, error) {
	switch s {
	case "padded":
		return LayoutPadded, nil
	case "prefixed":
		return LayoutPrefixed, nil
	}
	return 0, fmt.Errorf("unknown layout '%s'", s)
}

// SlotLength returns the size of a slot holding up to maxByteLength bytes of payload
func (l Layout) SlotLength(maxByteLength int64) int64 {
	if l == LayoutPrefixed {
		return prefixLen + maxByteLength + 1
	}
	return maxByteLength + 1
}

// checkPayload returns an error if payload can't be stored in this layout
// regardless of slot size
func (l Layout) checkPayload(payload []byte) error {
	n := len(payload)
	if n == 0 {
		return fmt.Errorf("empty payload can't be told apart from a blank slot")
	}
	if l == LayoutPrefixed {
		if uint64(n) > maxPrefixedLen {
			return fmt.Errorf("payload of %d bytes is too large", n)
		}
		return nil
	}
	if payload[n-1] == fillByte {
		return fmt.Errorf("payload ends with fill byte %q", fillByte)
	}
	return nil
}

// encode writes payload into dst which must be exactly one slot long.
// nil payload writes a blank slot.
func (l Layout) encode(dst []byte, payload []byte) {
	n := len(dst)
	body := dst[:n-1]
	fill := byte(fillByte)
	if l == LayoutPrefixed {
		binary.BigEndian.PutUint32(dst[:prefixLen], uint32(len(payload)))
		body = dst[prefixLen : n-1]
		fill = 0
	}
	copied := copy(body, payload)
	for i := copied; i < len(body); i++ {
		body[i] = fill
	}
	dst[n-1] = delimiter
}

// decode returns the payload of a slot, nil for a blank slot
func (l Layout) decode(slot []byte) ([]byte, error) {
	n := len(slot)
	if n == 0 || slot[n-1] != delimiter {
		return nil, fmt.Errorf("slot doesn't end with delimiter: %w", ErrCorrupted)
	}
	if l == LayoutPrefixed {
		if n < prefixLen+1 {
			return nil, fmt.Errorf("slot too short: %w", ErrCorrupted)
		}
		size := int64(binary.BigEndian.Uint32(slot[:prefixLen]))
		if size > int64(n-prefixLen-1) {
			return nil, fmt.Errorf("payload size %d exceeds slot: %w", size, ErrCorrupted)
		}
		if size == 0 {
			return nil, nil
		}
		return slot[prefixLen : prefixLen+size], nil
	}
	payload := bytes.TrimRight(slot[:n-1], string(fillByte))
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}
