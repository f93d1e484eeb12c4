//go:build unix

package collection

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestFileSingleOwner(t *testing.T) {
	path := usersPath(t)
	c, err := OpenFile[uuid.UUID, user](FileOptions{Path: path})
	require.NoError(t, err)

	_, err = OpenFile[uuid.UUID, user](FileOptions{Path: path})
	require.ErrorIs(t, err, ErrLocked)
	require.ErrorIs(t, err, ErrIO)

	require.NoError(t, c.Close())
	c2, err := OpenFile[uuid.UUID, user](FileOptions{Path: path})
	require.NoError(t, err)
	require.NoError(t, c2.Close())
}
