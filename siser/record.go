package siser

import (
	"bytes"
	"fmt"
	"strconv"
)

/*
Serialize/Deserialize list of key/value pairs in a format that is easy
to parse and human-readable.

The basic format is line-oriented: "key: value\n"

When value is long (> 120 chars), empty or has non-printable chars in it,
we serialize it as:
key:+$len\n
value\n
*/

type Entry struct {
	Key   string
	Value string
}

// Record is an ordered list of key/value pairs
type Record struct {
	Entries []Entry
}

// perf: re-use buf
func toStr(v any, buf *[]byte) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		*buf = strconv.AppendInt((*buf)[:0], int64(x), 10)
		return string(*buf)
	case int64:
		*buf = strconv.AppendInt((*buf)[:0], x, 10)
		return string(*buf)
	}
	*buf = fmt.Appendf((*buf)[:0], "%v", v)
	return string(*buf)
}

// Write appends key/value pairs. Keys and values are converted with %v
// unless they're strings or ints.
func (r *Record) Write(args ...any) error {
	n := len(args)
	if n == 0 || n%2 != 0 {
		return fmt.Errorf("invalid number of args: %d. Should be multiple of 2", len(args))
	}
	var buf []byte
	for i := 0; i < n; i += 2 {
		k := toStr(args[i], &buf)
		if err := validateKey(k); err != nil {
			return err
		}
		v := toStr(args[i+1], &buf)
		r.Entries = append(r.Entries, Entry{Key: k, Value: v})
	}
	return nil
}

func validateKey(k string) error {
	if k == "" {
		return fmt.Errorf("empty key")
	}
	if !serializableOnLine(k) {
		return fmt.Errorf("key '%s' has non-printable characters", k)
	}
	for i := 0; i < len(k); i++ {
		if k[i] == ':' {
			return fmt.Errorf("key '%s' contains ':'", k)
		}
	}
	return nil
}

// Get returns a value for a given key
func (r *Record) Get(key string) (string, bool) {
	for _, e := range r.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// GetInt64 returns a value for a given key parsed as int64
func (r *Record) GetInt64(key string) (int64, error) {
	s, ok := r.Get(key)
	if !ok {
		return 0, fmt.Errorf("missing key '%s'", key)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value '%s' of key '%s': %w", s, key, err)
	}
	return n, nil
}

func serializableOnLine(s string) bool {
	n := len(s)
	for i := 0; i < n; i++ {
		b := s[i]
		if b < 32 || b > 127 {
			return false
		}
	}
	return true
}

// return true if value needs to be serialized in long,
// size-prefixed format
func needsLongFormat(s string) bool {
	return len(s) == 0 || len(s) > 120 || !serializableOnLine(s)
}

// Marshal converts record to bytes
func (r *Record) Marshal() []byte {
	var buf bytes.Buffer
	for _, e := range r.Entries {
		buf.WriteString(e.Key)
		if !needsLongFormat(e.Value) {
			buf.WriteString(": ")
			buf.WriteString(e.Value)
			buf.WriteByte('\n')
			continue
		}
		buf.WriteString(":+")
		buf.WriteString(strconv.Itoa(len(e.Value)))
		buf.WriteByte('\n')
		buf.WriteString(e.Value)
		// for readability the next key always starts on a new line
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Unmarshal decodes data created by Marshal, replacing current entries
func (r *Record) Unmarshal(d []byte) error {
	r.Entries = r.Entries[:0]
	for len(d) > 0 {
		idx := bytes.IndexByte(d, '\n')
		if idx == -1 {
			return fmt.Errorf("missing '\\n' at the end of '%s'", string(d))
		}
		line := d[:idx]
		d = d[idx+1:]
		idx = bytes.IndexByte(line, ':')
		if idx == -1 || idx+1 >= len(line) {
			return fmt.Errorf("line in unrecognized format: '%s'", line)
		}
		key := string(line[:idx])
		kind := line[idx+1]
		val := line[idx+2:]
		switch kind {
		case ' ':
			r.Entries = append(r.Entries, Entry{Key: key, Value: string(val)})
			continue
		case '+':
		default:
			return fmt.Errorf("line in unrecognized format: '%s'", line)
		}
		n, err := strconv.Atoi(string(val))
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("negative length %d of data", n)
		}
		if n > len(d) {
			return fmt.Errorf("length of value %d greater than remaining data of size %d", n, len(d))
		}
		r.Entries = append(r.Entries, Entry{Key: key, Value: string(d[:n])})
		d = d[n:]
		if len(d) > 0 && d[0] == '\n' {
			d = d[1:]
		}
	}
	return nil
}
