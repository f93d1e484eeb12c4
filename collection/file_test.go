package collection

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kjk/docstore/codec"
	"github.com/kjk/docstore/u"
	"github.com/stretchr/testify/require"
)

func openUsers(t *testing.T, opts FileOptions) *FileCollection[uuid.UUID, user] {
	t.Helper()
	c, err := OpenFile[uuid.UUID, user](opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func usersPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "users.db")
}

func TestGrownMaxByteLength(t *testing.T) {
	require.Equal(t, int64(128), grownMaxByteLength(128, 128, 128))
	require.Equal(t, int64(256), grownMaxByteLength(128, 128, 129))
	require.Equal(t, int64(384), grownMaxByteLength(128, 128, 300))
	require.Equal(t, int64(228), grownMaxByteLength(128, 100, 200))
}

func TestFileInsertGrowUpdate(t *testing.T) {
	path := usersPath(t)
	c := openUsers(t, FileOptions{Path: path})
	require.Equal(t, int64(128), c.MaxByteLength())
	require.Equal(t, int64(129), c.SlotLength())

	a, b := newUser("a"), newUser("b")
	require.NoError(t, c.Insert(a))
	require.NoError(t, c.Insert(b))
	loc, _ := c.Location(a.ID)
	require.Equal(t, Slot{Offset: 0, Length: 129}, loc)
	loc, _ = c.Location(b.ID)
	require.Equal(t, Slot{Offset: 129, Length: 129}, loc)
	require.Equal(t, int64(2*129), u.FileSize(path))

	// doesn't fit in 128, grows to 256
	b.Name = strings.Repeat("b", 150)
	require.NoError(t, c.Update(b))
	require.Equal(t, int64(256), c.MaxByteLength())
	loc, _ = c.Location(a.ID)
	require.Equal(t, Slot{Offset: 0, Length: 257}, loc)
	loc, _ = c.Location(b.ID)
	require.Equal(t, Slot{Offset: 257, Length: 257}, loc)

	d := readFile(t, path)
	require.Len(t, d, 2*257)
	require.Equal(t, byte('\n'), d[256])
	require.Equal(t, byte('\n'), d[513])
	require.Contains(t, string(d[257:513]), b.Name)
	require.True(t, bytes.HasPrefix(d, []byte(`{"id":"`+a.ID.String())))

	got, ok := c.Get(b.ID)
	require.True(t, ok)
	require.Equal(t, b, got)

	m, err := readMeta(path)
	require.NoError(t, err)
	require.Equal(t, &fileMeta{MaxByteLength: 256, GrowthIncrement: 128, Layout: LayoutPadded, Codec: "json"}, m)
}

func TestFileUpdateInPlace(t *testing.T) {
	path := usersPath(t)
	c := openUsers(t, FileOptions{Path: path})
	a, b := newUser("a"), newUser("b")
	require.NoError(t, c.Insert(a))
	require.NoError(t, c.Insert(b))
	before := readFile(t, path)

	b.Name = "bob"
	require.NoError(t, c.Update(b))
	after := readFile(t, path)
	require.Len(t, after, len(before))
	// only the slot of b changed
	require.Equal(t, before[:129], after[:129])
	require.NotEqual(t, before[129:], after[129:])
	require.Equal(t, int64(128), c.MaxByteLength())
}

func TestFileConflictLeavesFileUnchanged(t *testing.T) {
	path := usersPath(t)
	c := openUsers(t, FileOptions{Path: path})
	a, b := newUser("a"), newUser("b")
	require.NoError(t, c.Insert(a))
	require.NoError(t, c.Insert(b))
	before := readFile(t, path)

	dup := newUser("c")
	dup.Email = a.Email
	err := c.Insert(dup)
	require.ErrorIs(t, err, ErrConflict)
	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, a.ID.String(), e.With)

	b.Email = a.Email
	require.ErrorIs(t, c.Update(b), ErrConflict)
	require.ErrorIs(t, c.Insert(a), ErrDuplicateKey)
	require.ErrorIs(t, c.Update(newUser("x")), ErrNotFound)
	require.ErrorIs(t, c.Delete(uuid.New()), ErrNotFound)

	require.Equal(t, before, readFile(t, path))
	require.Equal(t, 2, c.Len())
	got, _ := c.Get(b.ID)
	require.Equal(t, "b@example.com", got.Email)
}

func TestFileDeleteBlanksSlot(t *testing.T) {
	path := usersPath(t)
	c := openUsers(t, FileOptions{Path: path})
	a, b, x := newUser("a"), newUser("b"), newUser("x")
	for _, doc := range []user{a, b, x} {
		require.NoError(t, c.Insert(doc))
	}
	require.NoError(t, c.Delete(b.ID))
	_, ok := c.Get(b.ID)
	require.False(t, ok)

	d := readFile(t, path)
	require.Len(t, d, 3*129)
	blank := append(bytes.Repeat([]byte{' '}, 128), '\n')
	require.Equal(t, blank, d[129:258])

	// blank slots are not reused
	y := newUser("y")
	require.NoError(t, c.Insert(y))
	loc, _ := c.Location(y.ID)
	require.Equal(t, int64(3*129), loc.Offset)

	require.NoError(t, c.Close())
	c2 := openUsers(t, FileOptions{Path: path})
	requireSameUsers(t, []user{a, x, y}, allUsers(c2))
}

func TestFileReopen(t *testing.T) {
	path := usersPath(t)
	c := openUsers(t, FileOptions{Path: path, SyncWrite: true})
	var exp []user
	for _, name := range []string{"ann", "bob", "cid", "dan"} {
		doc := newUser(name)
		doc.Tags = []string{"t-" + name}
		require.NoError(t, c.Insert(doc))
		exp = append(exp, doc)
	}
	exp[1].Name = strings.Repeat("long", 30)
	require.NoError(t, c.Update(exp[1]))
	require.NoError(t, c.Delete(exp[2].ID))
	exp = append(exp[:2], exp[3])
	requireSameUsers(t, exp, allUsers(c))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Insert(newUser("z")), ErrClosed)

	// persisted max_byte_length wins over options
	c2 := openUsers(t, FileOptions{Path: path, MaxByteLength: 64})
	require.Equal(t, int64(256), c2.MaxByteLength())
	requireSameUsers(t, exp, allUsers(c2))
	got, ok := c2.Find(func(u user) bool { return u.Name == "dan" })
	require.True(t, ok)
	require.Equal(t, exp[2], got)
}

func TestFileReopenOptionMismatch(t *testing.T) {
	path := usersPath(t)
	c := openUsers(t, FileOptions{Path: path})
	require.NoError(t, c.Insert(newUser("a")))
	require.NoError(t, c.Close())

	_, err := OpenFile[uuid.UUID, user](FileOptions{Path: path, Codec: codec.PrettyJSON{}})
	require.ErrorIs(t, err, ErrInvalidOptions)
	_, err = OpenFile[uuid.UUID, user](FileOptions{Path: path, Layout: LayoutPrefixed})
	require.ErrorIs(t, err, ErrInvalidOptions)

	// a new growth increment is persisted
	c2 := openUsers(t, FileOptions{Path: path, GrowthIncrement: 64})
	require.Equal(t, 1, c2.Len())
	require.NoError(t, c2.Close())
	m, err := readMeta(path)
	require.NoError(t, err)
	require.Equal(t, int64(64), m.GrowthIncrement)
}

func TestFileInvalidOptions(t *testing.T) {
	_, err := OpenFile[uuid.UUID, user](FileOptions{})
	require.ErrorIs(t, err, ErrInvalidOptions)
	_, err = OpenFile[uuid.UUID, user](FileOptions{Path: usersPath(t), MaxByteLength: -1})
	require.ErrorIs(t, err, ErrInvalidOptions)
	_, err = OpenFile[uuid.UUID, user](FileOptions{Path: usersPath(t), Layout: Layout(7)})
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestFileCorrupted(t *testing.T) {
	path := usersPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not a slot"), 0644))
	_, err := OpenFile[uuid.UUID, user](FileOptions{Path: path})
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, ErrCorrupted)

	// right size, bad delimiter
	d := bytes.Repeat([]byte{'x'}, 129)
	require.NoError(t, os.WriteFile(path, d, 0644))
	_, err = OpenFile[uuid.UUID, user](FileOptions{Path: path})
	require.ErrorIs(t, err, ErrCorrupted)

	// lock was released on failure
	require.NoError(t, os.WriteFile(path, nil, 0644))
	c := openUsers(t, FileOptions{Path: path})
	require.Equal(t, 0, c.Len())
}

func TestFileRejectsTrailingFill(t *testing.T) {
	path := usersPath(t)
	c := openUsers(t, FileOptions{Path: path, Codec: trailingSpaceCodec{}})
	err := c.Insert(newUser("a"))
	require.ErrorIs(t, err, ErrSerialization)
	require.Equal(t, 0, c.Len())
	require.Equal(t, int64(0), u.FileSize(path))
}

func TestFileFailedGrowthChangesNothing(t *testing.T) {
	path := usersPath(t)
	fc := &failingCodec{}
	c := openUsers(t, FileOptions{Path: path, Codec: fc})
	a, b := newUser("a"), newUser("b")
	require.NoError(t, c.Insert(a))
	require.NoError(t, c.Insert(b))
	before := readFile(t, path)

	// re-encoding a during the rewrite fails
	fc.failName = "a"
	big := newUser(strings.Repeat("c", 60))
	err := c.Insert(big)
	require.ErrorIs(t, err, ErrSerialization)

	require.Equal(t, before, readFile(t, path))
	require.Equal(t, int64(128), c.MaxByteLength())
	require.Equal(t, 2, c.Len())
	_, ok := c.Get(big.ID)
	require.False(t, ok)
	loc, _ := c.Location(b.ID)
	require.Equal(t, Slot{Offset: 129, Length: 129}, loc)
	require.Equal(t, []string{"users.db", "users.db.lock", "users.db.meta"}, dirNames(t, filepath.Dir(path)))

	fc.failName = ""
	require.NoError(t, c.Insert(big))
	require.Equal(t, int64(256), c.MaxByteLength())
	requireSameUsers(t, []user{a, b, big}, allUsers(c))
}

func TestFileCompact(t *testing.T) {
	path := usersPath(t)
	c := openUsers(t, FileOptions{Path: path})
	a, b, x := newUser("a"), newUser("b"), newUser("x")
	for _, doc := range []user{a, b, x} {
		require.NoError(t, c.Insert(doc))
	}
	// nothing to compact
	require.NoError(t, c.Compact())
	require.Equal(t, int64(3*129), u.FileSize(path))

	require.NoError(t, c.Delete(a.ID))
	require.NoError(t, c.Compact())
	require.Equal(t, int64(2*129), u.FileSize(path))
	loc, _ := c.Location(b.ID)
	require.Equal(t, int64(0), loc.Offset)
	loc, _ = c.Location(x.ID)
	require.Equal(t, int64(129), loc.Offset)

	// the collection keeps working on the new file
	y := newUser("y")
	require.NoError(t, c.Insert(y))
	require.NoError(t, c.Close())

	c2 := openUsers(t, FileOptions{Path: path})
	requireSameUsers(t, []user{b, x, y}, allUsers(c2))
}

func TestFilePrefixedCompressed(t *testing.T) {
	path := usersPath(t)
	zc := codec.Compressed{Inner: codec.JSON{}, Algo: u.AlgoZstd}
	c := openUsers(t, FileOptions{Path: path, Layout: LayoutPrefixed, MaxByteLength: 64, GrowthIncrement: 32, Codec: zc})
	require.Equal(t, int64(69), c.SlotLength())
	var exp []user
	for i := 0; i < 10; i++ {
		doc := newUser(strings.Repeat("n", i*20))
		require.NoError(t, c.Insert(doc))
		exp = append(exp, doc)
	}
	require.NoError(t, c.Close())

	// codec is found by the persisted name
	c2 := openUsers(t, FileOptions{Path: path})
	requireSameUsers(t, exp, allUsers(c2))
	require.Equal(t, c.MaxByteLength(), c2.MaxByteLength())
	require.Equal(t, int64(0), u.FileSize(path)%c2.SlotLength())
}

// trailingSpaceCodec produces payloads the padded layout can't store
type trailingSpaceCodec struct {
	codec.JSON
}

func (trailingSpaceCodec) Marshal(v any) ([]byte, error) {
	d, err := codec.JSON{}.Marshal(v)
	return append(d, ' '), err
}

// failingCodec fails to marshal users with a given name
type failingCodec struct {
	codec.JSON
	failName string
}

func (c *failingCodec) Marshal(v any) ([]byte, error) {
	if doc, ok := v.(user); ok && c.failName != "" && doc.Name == c.failName {
		return nil, errors.New("marshal failed")
	}
	return c.JSON.Marshal(v)
}
