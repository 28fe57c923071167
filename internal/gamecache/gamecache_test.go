package gamecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lichess-org/lila-ws/internal/model"
)

func gameId(t *testing.T, s string) model.GameId {
	t.Helper()
	id, err := model.ParseGameId(s)
	require.NoError(t, err)
	return id
}

func TestPutAndGet(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	id := gameId(t, "abcd1234")
	c.Put(id, WatchedGame{Fen: "fen1", Lm: "e2e4"})

	got, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, "fen1", got.Fen)
}

func TestPeekDoesNotError(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	id := gameId(t, "abcd1234")
	_, ok := c.Peek(id)
	assert.False(t, ok)

	c.Put(id, WatchedGame{Fen: "fen1"})
	got, ok := c.Peek(id)
	require.True(t, ok)
	assert.Equal(t, "fen1", got.Fen)
}

func TestMissingEntry(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	_, ok := c.Get(gameId(t, "nosuchid"))
	assert.False(t, ok)
}
