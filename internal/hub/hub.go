// Package hub holds the gateway's routing tables — the four independently
// lockable maps from spec.md §3 that let the bus ingress worker and the
// socket handlers find which sockets to notify without sharing a single
// lock. Adapted from the teacher's internal/websocket.Hub (map of clients
// behind one mutex, register/unregister operations); generalized here into
// four maps, each with its own lock, since spec.md's invariant 6
// (independent locking, no nested acquisition) precludes the teacher's
// single coarse hub mutex. See SPEC_FULL.md C7.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lichess-org/lila-ws/internal/model"
)

// Sender is anything that can push a framed message down to a browser.
// The socket handler's connection type implements this; tests use fakes.
type Sender interface {
	ID() model.SocketId
	Send(data []byte) error
}

// Hub owns the four routing tables plus the watching_mlat set.
type Hub struct {
	log zerolog.Logger

	userMu sync.RWMutex
	byUser map[model.UserId][]Sender

	gameMu sync.RWMutex
	byGame map[model.GameId][]Sender

	flagMu sync.RWMutex
	byFlag [model.FlagCount]map[model.SocketId]Sender

	idMu sync.RWMutex
	byID map[model.SocketId]Sender

	mlatMu       sync.RWMutex
	watchingMlat map[model.SocketId]Sender
}

// New builds an empty Hub.
func New(log zerolog.Logger) *Hub {
	h := &Hub{
		log:          log.With().Str("component", "hub").Logger(),
		byUser:       make(map[model.UserId][]Sender),
		byGame:       make(map[model.GameId][]Sender),
		byID:         make(map[model.SocketId]Sender),
		watchingMlat: make(map[model.SocketId]Sender),
	}
	for i := range h.byFlag {
		h.byFlag[i] = make(map[model.SocketId]Sender)
	}
	return h
}

// AddID registers a newly accepted socket. Every socket is tracked here
// regardless of authentication state, for TellAll and the connection count.
func (h *Hub) AddID(s Sender) {
	h.idMu.Lock()
	h.byID[s.ID()] = s
	h.idMu.Unlock()
}

// RemoveID unregisters a closed socket.
func (h *Hub) RemoveID(s Sender) {
	h.idMu.Lock()
	delete(h.byID, s.ID())
	h.idMu.Unlock()
}

// ConnectionCount returns the number of tracked sockets.
func (h *Hub) ConnectionCount() int {
	h.idMu.RLock()
	defer h.idMu.RUnlock()
	return len(h.byID)
}

// AddUser attaches a socket to a user's entry, reporting whether this is
// the user's first connection (the caller should publish a connect event).
func (h *Hub) AddUser(uid model.UserId, s Sender) (first bool) {
	h.userMu.Lock()
	defer h.userMu.Unlock()
	entry, exists := h.byUser[uid]
	h.byUser[uid] = append(entry, s)
	return !exists
}

// RemoveUser detaches a socket from a user's entry, reporting whether this
// was the user's last connection (the caller should publish a disconnect).
func (h *Hub) RemoveUser(uid model.UserId, s Sender) (last bool) {
	h.userMu.Lock()
	defer h.userMu.Unlock()
	entry, ok := h.byUser[uid]
	if !ok {
		return false
	}
	entry = removeSender(entry, s)
	if len(entry) == 0 {
		delete(h.byUser, uid)
		return true
	}
	h.byUser[uid] = entry
	return false
}

// AddGame attaches a socket to a game's watcher list, reporting whether
// this is the game's first watcher (the caller should publish a watch).
func (h *Hub) AddGame(id model.GameId, s Sender) (first bool) {
	h.gameMu.Lock()
	defer h.gameMu.Unlock()
	entry, exists := h.byGame[id]
	h.byGame[id] = append(entry, s)
	return !exists
}

// RemoveGame detaches a socket from a game's watcher list, reporting
// whether this was the last watcher (the caller should publish an unwatch).
func (h *Hub) RemoveGame(id model.GameId, s Sender) (last bool) {
	h.gameMu.Lock()
	defer h.gameMu.Unlock()
	entry, ok := h.byGame[id]
	if !ok {
		return false
	}
	entry = removeSender(entry, s)
	if len(entry) == 0 {
		delete(h.byGame, id)
		return true
	}
	h.byGame[id] = entry
	return false
}

// AddFlag subscribes a socket to a server-sent broadcast channel.
func (h *Hub) AddFlag(flag model.Flag, s Sender) {
	h.flagMu.Lock()
	h.byFlag[flag][s.ID()] = s
	h.flagMu.Unlock()
}

// RemoveFlag unsubscribes a socket from all flag channels.
func (h *Hub) RemoveFlag(s Sender) {
	h.flagMu.Lock()
	for i := range h.byFlag {
		delete(h.byFlag[i], s.ID())
	}
	h.flagMu.Unlock()
}

// AddMlat subscribes a socket to move-latency heartbeats.
func (h *Hub) AddMlat(s Sender) {
	h.mlatMu.Lock()
	h.watchingMlat[s.ID()] = s
	h.mlatMu.Unlock()
}

// RemoveMlat unsubscribes a socket from move-latency heartbeats.
func (h *Hub) RemoveMlat(s Sender) {
	h.mlatMu.Lock()
	delete(h.watchingMlat, s.ID())
	h.mlatMu.Unlock()
}

func removeSender(entry []Sender, s Sender) []Sender {
	for i, cand := range entry {
		if cand.ID() == s.ID() {
			entry[i] = entry[len(entry)-1]
			return entry[:len(entry)-1]
		}
	}
	return entry
}

// TellUser sends payload to every socket registered for uid.
func (h *Hub) TellUser(uid model.UserId, payload []byte) {
	h.userMu.RLock()
	entry := h.byUser[uid]
	h.userMu.RUnlock()

	for _, s := range entry {
		h.send(s, payload, "tell/user")
	}
}

// TellUsers sends payload to every socket registered for any of uids.
func (h *Hub) TellUsers(uids []model.UserId, payload []byte) {
	for _, uid := range uids {
		h.TellUser(uid, payload)
	}
}

// TellAll sends payload to every tracked socket.
func (h *Hub) TellAll(payload []byte) {
	h.idMu.RLock()
	defer h.idMu.RUnlock()
	for _, s := range h.byID {
		h.send(s, payload, "tell/all")
	}
}

// TellFlag sends payload to every socket subscribed to flag.
func (h *Hub) TellFlag(flag model.Flag, payload []byte) {
	h.flagMu.RLock()
	defer h.flagMu.RUnlock()
	for _, s := range h.byFlag[flag] {
		h.send(s, payload, "tell/flag")
	}
}

// TellGame sends payload to every socket watching id.
func (h *Hub) TellGame(id model.GameId, payload []byte) {
	h.gameMu.RLock()
	entry := h.byGame[id]
	h.gameMu.RUnlock()

	for _, s := range entry {
		h.send(s, payload, "move")
	}
}

// TellMlat sends payload to every socket subscribed to move-latency
// heartbeats.
func (h *Hub) TellMlat(payload []byte) {
	h.mlatMu.RLock()
	defer h.mlatMu.RUnlock()
	for _, s := range h.watchingMlat {
		h.send(s, payload, "mlat")
	}
}

func (h *Hub) send(s Sender, payload []byte, kind string) {
	if err := s.Send(payload); err != nil {
		h.log.Warn().Err(err).Uint64("socket", uint64(s.ID())).Str("kind", kind).Msg("failed to tell socket")
	}
}
