package siser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var hdrPrefix = []byte("--- ")

// MarshalLine frames d as a named, timestamped block:
//
//	--- ${size} ${timestamp_in_unix_epoch_ms} ${name}\n
//	${data}\n
//
// if t is time.Zero(), it's not marshalled
func MarshalLine(name string, t time.Time, d []byte, wb *bytes.Buffer) []byte {
	if wb == nil {
		wb = &bytes.Buffer{}
	} else {
		wb.Reset()
	}
	wb.Grow(len(hdrPrefix) + len(name) + len(d) + 32)

	wb.Write(hdrPrefix)
	dataLen := len(d)
	wb.WriteString(strconv.Itoa(dataLen))
	if !t.IsZero() {
		wb.WriteString(" ")
		wb.WriteString(strconv.FormatInt(t.UnixMilli(), 10))
	}
	if name != "" {
		wb.WriteString(" ")
		wb.WriteString(name)
	}
	wb.WriteByte('\n')
	// for readability, if the record doesn't end with newline,
	// we add one at the end
	if dataLen > 0 {
		wb.Write(d)
		if d[dataLen-1] != '\n' {
			wb.WriteByte('\n')
		}
	}
	return wb.Bytes()
}

// Block is a single block decoded by ParseLine
type Block struct {
	Name      string
	Timestamp time.Time
	Data      []byte
}

// ParseLine decodes one block written by MarshalLine with a timestamp and
// returns the remaining bytes
func ParseLine(d []byte) (*Block, []byte, error) {
	if !bytes.HasPrefix(d, hdrPrefix) {
		return nil, nil, fmt.Errorf("missing '%s' header prefix", hdrPrefix)
	}
	idx := bytes.IndexByte(d, '\n')
	if idx == -1 {
		return nil, nil, fmt.Errorf("missing '\\n' at the end of header")
	}
	hdr := string(d[len(hdrPrefix):idx])
	d = d[idx+1:]
	parts := strings.SplitN(hdr, " ", 3)
	if len(parts) < 2 {
		return nil, nil, fmt.Errorf("invalid header '%s'", hdr)
	}
	size, err := strconv.Atoi(parts[0])
	if err != nil || size < 0 || size > len(d) {
		return nil, nil, fmt.Errorf("invalid size in header '%s'", hdr)
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid timestamp in header '%s'", hdr)
	}
	b := &Block{
		Timestamp: time.UnixMilli(ms),
		Data:      d[:size],
	}
	if len(parts) > 2 {
		b.Name = parts[2]
	}
	d = d[size:]
	if size > 0 && b.Data[size-1] != '\n' && len(d) > 0 && d[0] == '\n' {
		d = d[1:]
	}
	return b, d, nil
}
