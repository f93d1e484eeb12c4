package collection

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	_ Store[uuid.UUID, user] = &MemoryCollection[uuid.UUID, user]{}
	_ Store[uuid.UUID, user] = &FileCollection[uuid.UUID, user]{}
	_ Store[uuid.UUID, user] = &DirCollection[uuid.UUID, user]{}
	_ Store[uuid.UUID, user] = &Shared[uuid.UUID, user]{}
)

// two users conflict if they have the same email
type user struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Tags  []string  `json:"tags,omitempty"`
}

func (u user) PrimaryKey() uuid.UUID {
	return u.ID
}

func (u user) Intersects(other user) error {
	if u.Email != "" && strings.EqualFold(u.Email, other.Email) {
		return fmt.Errorf("email '%s' is already used", other.Email)
	}
	return nil
}

func (u user) Clone() user {
	u.Tags = slices.Clone(u.Tags)
	return u
}

func newUser(name string) user {
	return user{
		ID:    uuid.New(),
		Name:  name,
		Email: name + "@example.com",
	}
}

// note has a string key, for testing keys that can't be file names
type note struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

func (n note) PrimaryKey() string {
	return n.Key
}

func (n note) Intersects(other note) error {
	return nil
}

func sortedUsers(users []user) []user {
	res := slices.Clone(users)
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID.String() < res[j].ID.String()
	})
	return res
}

func allUsers(s Store[uuid.UUID, user]) []user {
	return s.Filter(func(user) bool { return true })
}

func requireSameUsers(t *testing.T, exp []user, got []user) {
	t.Helper()
	if diff := cmp.Diff(sortedUsers(exp), sortedUsers(got)); diff != "" {
		t.Fatalf("users mismatch (-exp +got):\n%s", diff)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	d, err := os.ReadFile(path)
	require.NoError(t, err)
	return d
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var res []string
	for _, e := range entries {
		res = append(res, e.Name())
	}
	sort.Strings(res)
	return res
}
