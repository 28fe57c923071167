// Package gamecache holds the gateway's bounded cache of watched-game
// positions: the FEN and last move last reported for each game currently
// being watched by at least one socket. See SPEC_FULL.md C5.
//
// It wraps hashicorp/golang-lru, whose Cache type is already internally
// synchronized, so this package adds no extra locking beyond what Peek's
// non-promoting semantics require on top of the library's promoting Get.
package gamecache

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/lichess-org/lila-ws/internal/model"
)

// Capacity is the maximum number of watched games cached at once.
const Capacity = 5000

// WatchedGame is the last known position of a watched game.
type WatchedGame struct {
	Fen string
	Lm  string
}

// Cache is a bounded LRU of GameId -> WatchedGame.
type Cache struct {
	lru *lru.Cache
}

// New builds a cache with the default Capacity.
func New() (*Cache, error) {
	c, err := lru.New(Capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Put inserts or updates a game's cached position, promoting it to most
// recently used and evicting the least recently used entry if the cache
// is at capacity.
func (c *Cache) Put(id model.GameId, game WatchedGame) {
	c.lru.Add(id, game)
}

// Get returns the cached position for id, promoting it to most recently
// used — use this when the caller is actually about to serve the entry.
func (c *Cache) Get(id model.GameId) (WatchedGame, bool) {
	v, ok := c.lru.Get(id)
	if !ok {
		return WatchedGame{}, false
	}
	return v.(WatchedGame), true
}

// Peek returns the cached position for id without affecting recency — the
// fast path for startWatching, which should not promote an entry purely
// because a new watcher subscribed to an already-tracked game.
func (c *Cache) Peek(id model.GameId) (WatchedGame, bool) {
	v, ok := c.lru.Peek(id)
	if !ok {
		return WatchedGame{}, false
	}
	return v.(WatchedGame), true
}

// Len returns the number of cached games.
func (c *Cache) Len() int {
	return c.lru.Len()
}
