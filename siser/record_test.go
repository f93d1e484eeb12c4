package siser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordMarshal(t *testing.T) {
	var r Record
	long := strings.Repeat("a", 130)
	err := r.Write("max_byte_length", 256, "codec", "json", "long", long, "multi", "line1\nline2", "empty", "")
	require.NoError(t, err)
	d := r.Marshal()
	exp := "max_byte_length: 256\ncodec: json\nlong:+130\n" + long + "\nmulti:+11\nline1\nline2\nempty:+0\n\n"
	require.Equal(t, exp, string(d))

	var r2 Record
	require.NoError(t, r2.Unmarshal(d))
	require.Equal(t, r.Entries, r2.Entries)

	n, err := r2.GetInt64("max_byte_length")
	require.NoError(t, err)
	require.Equal(t, int64(256), n)
	_, err = r2.GetInt64("codec")
	require.Error(t, err)
	_, err = r2.GetInt64("missing")
	require.Error(t, err)
}

func TestRecordWriteInvalid(t *testing.T) {
	var r Record
	require.Error(t, r.Write("odd"))
	require.Error(t, r.Write("", "v"))
	require.Error(t, r.Write("a:b", "v"))
	require.Error(t, r.Write("a\nb", "v"))
}

func TestRecordUnmarshalInvalid(t *testing.T) {
	var r Record
	for _, s := range []string{"no newline", "nocolon\n", "k:x\n", "k:+5\nab\n", "k:+-1\n"} {
		require.Error(t, r.Unmarshal([]byte(s)), "input: %q", s)
	}
}

func TestMarshalLine(t *testing.T) {
	ts := time.UnixMilli(1704067200000)
	d := MarshalLine("docstore.grow", ts, []byte("from: 128"), nil)
	require.Equal(t, "--- 9 1704067200000 docstore.grow\nfrom: 128\n", string(d))

	d = append(d, MarshalLine("second", ts, []byte("x: 1\n"), nil)...)
	b, rest, err := ParseLine(d)
	require.NoError(t, err)
	require.Equal(t, "docstore.grow", b.Name)
	require.True(t, ts.Equal(b.Timestamp))
	require.Equal(t, "from: 128", string(b.Data))

	b, rest, err = ParseLine(rest)
	require.NoError(t, err)
	require.Equal(t, "second", b.Name)
	require.Equal(t, "x: 1\n", string(b.Data))
	require.Empty(t, rest)
}
