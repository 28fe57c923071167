// Package socket implements the per-connection lifecycle (C12) and the
// deferred-authentication state machine (C8) that sit on top of the
// routing tables in internal/hub. Adapted from the teacher's
// internal/websocket.Hub/Client readPump-writePump-register pattern; the
// register/unregister channel dance is replaced by direct calls into
// internal/hub's already-synchronized maps, since spec.md's locking
// discipline (one lock per map, no nested acquisition) makes a single
// serialising hub goroutine unnecessary. See SPEC_FULL.md C12.
package socket

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lichess-org/lila-ws/internal/analysis"
	"github.com/lichess-org/lila-ws/internal/bus"
	"github.com/lichess-org/lila-ws/internal/gamecache"
	"github.com/lichess-org/lila-ws/internal/hub"
	"github.com/lichess-org/lila-ws/internal/middleware"
	"github.com/lichess-org/lila-ws/internal/model"
	"github.com/lichess-org/lila-ws/internal/ratelimit"
	"github.com/lichess-org/lila-ws/internal/session"
	"github.com/lichess-org/lila-ws/internal/wire"
)

const (
	// idleTimeout is spec.md §4.3/§5: 15s of silence closes the socket.
	idleTimeout = 15 * time.Second

	// maxMessageBytes/largeMessageWarnBytes are spec.md §4.3's size bands.
	maxMessageBytes       = 1024
	largeMessageWarnBytes = 512

	// maxWatchedGames is spec.md §4.3's informational-only watch limit.
	maxWatchedGames = 20

	// sessionCookieName is the header entry spec.md §6 names.
	sessionCookieName = "lila2"
)

// Gateway owns the routing tables, the per-socket registry, and everything
// a connection needs to dispatch a message synchronously: the watched-game
// cache, the rate limiter, and the two outbound queues (session lookups,
// backend-bound records).
type Gateway struct {
	log         zerolog.Logger
	analysisLog zerolog.Logger
	hub         *hub.Hub
	cache       *gamecache.Cache
	limiter     *ratelimit.Limiter

	outbound *bus.Outbound
	lookups  chan<- session.LookupRequest

	maxConnections int
	upgrader       websocket.Upgrader

	nextID atomic.Uint64
	mlat   atomic.Uint32

	mu    sync.RWMutex
	conns map[model.SocketId]*connection
}

// connection is the per-socket state the spec keeps off the shared maps:
// auth phase, watched games, flag subscription, and the idle timer. Only
// the auth field needs its own lock (the session worker resolves it from
// a different goroutine); everything else here is touched exclusively by
// this connection's own readPump goroutine or the close path that
// replaces it, so no additional locking is required.
type connection struct {
	sender *wsConn
	auth   *authState

	clientAddr string
	userAgent  string
	corrID     string

	flag      *model.Flag
	watching  map[model.GameId]struct{}
	idleTimer *time.Timer

	closeOnce sync.Once
	log       zerolog.Logger
}

// NewGateway wires the routing tables, cache, and rate limiter into a
// ready-to-serve Gateway. lookups feeds the session lookup worker (C13);
// outbound feeds the pub/sub egress worker (C11). analysisLog scopes the
// logged outcome of failed getDests/playMove/playDrop requests, since the
// stateless internal/analysis package has no logger of its own to do that
// from inside.
func NewGateway(log, analysisLog zerolog.Logger, h *hub.Hub, cache *gamecache.Cache, limiter *ratelimit.Limiter, lookups chan<- session.LookupRequest, outbound *bus.Outbound, maxConnections int) *Gateway {
	return &Gateway{
		log:            log.With().Str("component", "socket").Logger(),
		analysisLog:    analysisLog.With().Str("component", "analysis").Logger(),
		hub:            h,
		cache:          cache,
		limiter:        limiter,
		lookups:        lookups,
		outbound:       outbound,
		maxConnections: maxConnections,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[model.SocketId]*connection),
	}
}

// ServeWS is the gin.HandlerFunc that upgrades an HTTP request to a
// WebSocket and runs the connection's lifecycle to completion.
func (g *Gateway) ServeWS(c *gin.Context) {
	if g.hub.ConnectionCount() >= g.maxConnections {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	flag, hadFlagParam := parseFlagParam(c.Query("flag"))
	if hadFlagParam && flag == nil {
		g.log.Warn().Str("flag", c.Query("flag")).Msg("unknown flag query parameter, ignoring")
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := model.SocketId(g.nextID.Add(1))
	sender := newWSConn(id, conn)

	cookie := c.GetHeader("Cookie")
	sessionID, hasCookie := session.ParseSessionID(cookie)

	// Reuse the request id the RequestID middleware already stamped on this
	// upgrade request instead of minting a second, parallel id scheme; a
	// socket that somehow reaches here without one (middleware not wired in
	// front of this route) still gets a fresh uuid rather than an empty
	// correlation id.
	corrID := middleware.GetRequestID(c)
	if corrID == "" {
		corrID = uuid.New().String()
	}

	entry := &connection{
		sender:     sender,
		auth:       newAuthState(hasCookie),
		clientAddr: c.ClientIP(),
		userAgent:  c.GetHeader("User-Agent"),
		corrID:     corrID,
		flag:       flag,
		watching:   make(map[model.GameId]struct{}),
	}
	entry.log = g.log.With().Str("corr_id", entry.corrID).Str("client_ip", entry.clientAddr).Uint64("socket_id", uint64(id)).Logger()
	entry.idleTimer = time.AfterFunc(idleTimeout, func() { g.closeConnection(entry, websocket.CloseGoingAway, "idle timeout") })

	g.mu.Lock()
	g.conns[id] = entry
	g.mu.Unlock()
	g.hub.AddID(sender)
	if flag != nil {
		g.hub.AddFlag(*flag, sender)
	}

	entry.log.Info().Bool("has_cookie", hasCookie).Msg("socket opened")

	if hasCookie {
		select {
		case g.lookups <- session.LookupRequest{SocketId: id, Cookie: cookie}:
		default:
			entry.log.Warn().Msg("session lookup queue full, resolving anonymous")
			g.ResolveSession(id, "", false)
		}
	}
	_ = sessionID // retained on the request; the worker re-derives it from Cookie

	go sender.writePump()
	g.readPump(entry)
}

// ResolveSession implements session.Resolver: it completes the auth state
// machine transition and, on the phase's first resolution, publishes the
// connect event and replays any deferred notified/following_onlines
// intents exactly once. The registry's write lock is held for the whole
// transition, so a concurrent close either finds the resolved phase or
// this lookup finds the socket already gone.
func (g *Gateway) ResolveSession(id model.SocketId, uid model.UserId, authenticated bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.conns[id]
	if !ok {
		return // socket closed before the lookup completed
	}

	replay, transitioned := entry.auth.Resolve(uid, authenticated)
	if !transitioned {
		return
	}

	if authenticated {
		if first := g.hub.AddUser(uid, entry.sender); first {
			g.publish(wire.ConnectIn(string(uid)))
		}
		entry.log.Info().Str("user", string(uid)).Msg("socket authenticated")
	} else {
		entry.log.Info().Msg("socket resolved anonymous")
	}

	if replay.notified {
		g.replayIntent(entry, authenticated, uid, wire.NotifiedIn, "notified")
	}
	if replay.followingOnlines {
		g.replayIntent(entry, authenticated, uid, wire.FriendsIn, "following_onlines")
	}
}

func (g *Gateway) replayIntent(entry *connection, authenticated bool, uid model.UserId, build func(string) wire.LilaIn, label string) {
	if !authenticated {
		entry.log.Info().Str("intent", label).Msg("dropping deferred intent: socket resolved anonymous")
		return
	}
	g.publish(build(string(uid)))
}

func (g *Gateway) publish(rec wire.LilaIn) {
	g.outbound.Push(rec.String())
}

func parseFlagParam(raw string) (*model.Flag, bool) {
	if raw == "" {
		return nil, false
	}
	f, err := model.ParseFlag(raw)
	if err != nil {
		return nil, true
	}
	return &f, true
}

// decodeAnalysis reads the wire.AnalysisRequest payload shared by the four
// analysis tags (opening, anaDests, anaMove, anaDrop).
func decodeAnalysis(out wire.SocketOut) (wire.AnalysisRequest, error) {
	return wire.DecodeAnalysisRequest(out)
}

func variantOf(req wire.AnalysisRequest) analysis.Variant {
	return analysis.Variant(req.Variant)
}

// readPump is the connection's single reader goroutine: it owns rate
// limiting, idle-timeout resets, the size bands of spec.md §4.3, and the
// "null"/"0" ping shortcut, then hands anything left to dispatch. Adapted
// from the teacher's Client.readPump (SetReadLimit/SetReadDeadline loop);
// the deadline here is reimplemented as an explicit timer so it can also
// drive the idle-timeout close, which the teacher's fixed read deadline
// does not need to distinguish from any other read error.
func (g *Gateway) readPump(entry *connection) {
	conn := entry.sender.conn
	conn.SetReadLimit(maxMessageBytes + 1)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		if !g.limiter.Allow(entry.clientAddr) {
			entry.log.Info().Msg("rate limit exceeded, dropping message")
			continue
		}

		entry.idleTimer.Reset(idleTimeout)

		if string(data) == wire.PingShortcut {
			_ = entry.sender.Send([]byte(wire.Pong))
			continue
		}

		if len(data) > maxMessageBytes {
			entry.log.Warn().Int("bytes", len(data)).Msg("message too large, closing")
			g.closeConnection(entry, websocket.CloseMessageTooBig, "message too large")
			return
		}
		if len(data) > largeMessageWarnBytes {
			entry.log.Info().Int("bytes", len(data)).Msg("unusually large message")
		}

		out, err := wire.DecodeSocketOut(data)
		if err != nil || !wire.KnownSocketOutKinds[out.T] {
			entry.log.Warn().Err(err).Bytes("raw", data).Msg("protocol violation, closing")
			g.closeConnection(entry, websocket.CloseProtocolError, "protocol violation")
			return
		}

		g.dispatch(entry, out)
	}

	g.closeConnection(entry, websocket.CloseNormalClosure, "")
}

// dispatch routes one decoded client message to its handler. The switch is
// exhaustive over wire.KnownSocketOutKinds; readPump has already rejected
// anything else as a protocol violation.
func (g *Gateway) dispatch(entry *connection, out wire.SocketOut) {
	switch out.T {
	case wire.SocketOutPing:
		g.handlePing(entry, out)
	case wire.SocketOutNotified:
		g.handleNotified(entry)
	case wire.SocketOutFollowingOnlines:
		g.handleFollowingOnlines(entry)
	case wire.SocketOutStartWatching:
		g.handleStartWatching(entry, out)
	case wire.SocketOutMoveLatency:
		g.handleMoveLatencySub(entry, out)
	case wire.SocketOutOpening:
		g.handleOpening(entry, out)
	case wire.SocketOutAnaDests:
		g.handleAnaDests(entry, out)
	case wire.SocketOutAnaMove:
		g.handleAnaMove(entry, out)
	case wire.SocketOutAnaDrop:
		g.handleAnaDrop(entry, out)
	case wire.SocketOutEvalGet, wire.SocketOutEvalPut:
		// Eval cache lookups are served by a dedicated backend service the
		// gateway never talks to directly; accepted as known tags so they
		// don't trip the protocol-violation path, but otherwise ignored.
	}
}

func (g *Gateway) handlePing(entry *connection, out wire.SocketOut) {
	lag, ok := wire.DecodePingLag(out)
	if !ok {
		return
	}
	uid, authenticated := entry.auth.Authenticated()
	if !authenticated {
		return
	}
	g.publish(wire.LagIn(string(uid), uint32(lag)))
}

func (g *Gateway) handleNotified(entry *connection) {
	if entry.auth.DeferNotified() {
		return
	}
	if uid, ok := entry.auth.Authenticated(); ok {
		g.publish(wire.NotifiedIn(string(uid)))
	}
}

func (g *Gateway) handleFollowingOnlines(entry *connection) {
	if entry.auth.DeferFollowingOnlines() {
		return
	}
	if uid, ok := entry.auth.Authenticated(); ok {
		g.publish(wire.FriendsIn(string(uid)))
	}
}

// handleStartWatching subscribes to every game id in the space-separated
// list, publishing a watch record on each game's first watcher and
// replying immediately from the cache when a position is already known
// (spec.md §8's cache-hit fast path). A socket watching more than
// maxWatchedGames games gets a warning logged; every game is still watched.
func (g *Gateway) handleStartWatching(entry *connection, out wire.SocketOut) {
	raw, err := wire.DecodeStartWatching(out)
	if err != nil {
		return
	}

	for _, token := range strings.Fields(raw) {
		id, err := model.ParseGameId(token)
		if err != nil {
			continue
		}
		if _, already := entry.watching[id]; already {
			continue
		}
		entry.watching[id] = struct{}{}
		if len(entry.watching) > maxWatchedGames {
			entry.log.Warn().Int("watching", len(entry.watching)).Msg("socket is watching many games")
		}
		if first := g.hub.AddGame(id, entry.sender); first {
			g.publish(wire.WatchIn(id.String()))
		}

		if cached, ok := g.cache.Peek(id); ok {
			payload, err := wire.EncodeFen(wire.FenMessage{Id: id.String(), Fen: cached.Fen, Lm: cached.Lm})
			if err == nil {
				_ = entry.sender.Send(payload)
			}
		}
	}
}

// handleMoveLatencySub subscribes or unsubscribes the socket from the mlat
// broadcast; a fresh subscriber also gets the current snapshot immediately
// rather than waiting for the next backend tick.
func (g *Gateway) handleMoveLatencySub(entry *connection, out wire.SocketOut) {
	subscribe, err := wire.DecodeMoveLatencySub(out)
	if err != nil {
		return
	}
	if subscribe {
		g.hub.AddMlat(entry.sender)
		if payload, err := wire.EncodeMoveLatency(g.mlat.Load()); err == nil {
			_ = entry.sender.Send(payload)
		}
	} else {
		g.hub.RemoveMlat(entry.sender)
	}
}

func (g *Gateway) handleOpening(entry *connection, out wire.SocketOut) {
	req, err := decodeAnalysis(out)
	if err != nil {
		return
	}
	resp := analysis.RespondOpening(analysis.GetOpeningRequest{
		Variant: variantOf(req),
		Path:    req.Path,
		Fen:     req.Fen,
	})
	if resp == nil {
		return
	}
	if payload, err := wire.EncodeOpening(resp); err == nil {
		_ = entry.sender.Send(payload)
	}
}

func (g *Gateway) handleAnaDests(entry *connection, out wire.SocketOut) {
	req, err := decodeAnalysis(out)
	if err != nil {
		g.sendDestsFailure(entry)
		return
	}
	resp, err := analysis.RespondDests(analysis.GetDestsRequest{
		Variant:   variantOf(req),
		Fen:       req.Fen,
		Path:      req.Path,
		ChapterId: req.ChapterId,
	})
	if err != nil {
		g.analysisLog.Info().Err(err).Str("fen", req.Fen).Str("variant", req.Variant).Msg("getDests failed")
		g.sendDestsFailure(entry)
		return
	}
	if payload, err := wire.EncodeDests(resp); err == nil {
		_ = entry.sender.Send(payload)
	}
}

func (g *Gateway) sendDestsFailure(entry *connection) {
	if payload, err := wire.EncodeDestsFailure(); err == nil {
		_ = entry.sender.Send(payload)
	}
}

func (g *Gateway) handleAnaMove(entry *connection, out wire.SocketOut) {
	req, err := decodeAnalysis(out)
	if err != nil {
		g.sendStepFailure(entry)
		return
	}
	node, err := analysis.RespondMove(analysis.PlayMoveRequest{
		Orig:      req.Orig,
		Dest:      req.Dest,
		Variant:   variantOf(req),
		Fen:       req.Fen,
		Path:      req.Path,
		Promotion: req.Promotion,
		ChapterId: req.ChapterId,
	})
	if err != nil {
		g.analysisLog.Info().Err(err).Str("fen", req.Fen).Str("variant", req.Variant).Msg("playMove failed")
		g.sendStepFailure(entry)
		return
	}
	if payload, err := wire.EncodeNode(node); err == nil {
		_ = entry.sender.Send(payload)
	}
}

// handleAnaDrop places a crazyhouse pocket piece; req.Pos carries the
// destination square, matching the "pos" field the client sends alongside
// "role" for a drop (there is no "orig" for a piece that was never on the
// board).
func (g *Gateway) handleAnaDrop(entry *connection, out wire.SocketOut) {
	req, err := decodeAnalysis(out)
	if err != nil {
		g.sendStepFailure(entry)
		return
	}
	node, err := analysis.RespondDrop(analysis.PlayDropRequest{
		Role:      req.Role,
		Square:    req.Pos,
		Variant:   variantOf(req),
		Fen:       req.Fen,
		Path:      req.Path,
		ChapterId: req.ChapterId,
	})
	if err != nil {
		g.analysisLog.Info().Err(err).Str("fen", req.Fen).Str("variant", req.Variant).Msg("playDrop failed")
		g.sendStepFailure(entry)
		return
	}
	if payload, err := wire.EncodeNode(node); err == nil {
		_ = entry.sender.Send(payload)
	}
}

func (g *Gateway) sendStepFailure(entry *connection) {
	if payload, err := wire.EncodeStepFailure(); err == nil {
		_ = entry.sender.Send(payload)
	}
}

// closeConnection tears an entry out of every routing table it joined and
// shuts down its transport. Idempotent: the idle timer, a protocol
// violation, and readPump's own exit path can all reach this concurrently,
// but only the first caller does any work.
func (g *Gateway) closeConnection(entry *connection, code int, reason string) {
	entry.closeOnce.Do(func() {
		entry.idleTimer.Stop()

		g.mu.Lock()
		delete(g.conns, entry.sender.ID())
		g.mu.Unlock()

		g.hub.RemoveID(entry.sender)
		g.hub.RemoveFlag(entry.sender)
		g.hub.RemoveMlat(entry.sender)

		if uid, ok := entry.auth.Authenticated(); ok {
			if last := g.hub.RemoveUser(uid, entry.sender); last {
				g.publish(wire.DisconnectIn(string(uid)))
			}
		}

		for id := range entry.watching {
			if last := g.hub.RemoveGame(id, entry.sender); last {
				g.publish(wire.UnwatchIn(id.String()))
			}
		}

		entry.sender.shutdown(code, reason)
		entry.log.Info().Str("reason", reason).Msg("socket closed")
	})
}

// HandleLilaOut is the C9 ingress worker's per-record dispatch: one
// site-out record decoded and fanned out to the routing tables it names.
func (g *Gateway) HandleLilaOut(line string) {
	rec, err := wire.DecodeLilaOut(line)
	if err != nil {
		g.log.Warn().Err(err).Str("line", line).Msg("unrecognised site-out record")
		return
	}

	switch rec.Kind {
	case wire.LilaOutMlat:
		g.mlat.Store(rec.Mlat)
		g.limiter.GC()
		if payload, err := wire.EncodeMoveLatency(rec.Mlat); err == nil {
			g.hub.TellMlat(payload)
		}
		g.publish(wire.ConnectionsIn(uint32(g.hub.ConnectionCount())))
	case wire.LilaOutMove:
		g.handleLilaMove(rec)
	case wire.LilaOutTellUser:
		uids := make([]model.UserId, 0, len(rec.Users))
		for _, u := range rec.Users {
			if uid, err := model.ParseUserId(u); err == nil {
				uids = append(uids, uid)
			}
		}
		g.hub.TellUsers(uids, rec.Payload)
	case wire.LilaOutTellAll:
		g.hub.TellAll(rec.Payload)
	case wire.LilaOutTellFlag:
		flag, err := model.ParseFlag(rec.Flag)
		if err != nil {
			g.log.Warn().Str("flag", rec.Flag).Msg("unknown tell-flag target")
			return
		}
		g.hub.TellFlag(flag, rec.Payload)
	}
}

func (g *Gateway) handleLilaMove(rec wire.LilaOut) {
	id, err := model.ParseGameId(rec.GameId)
	if err != nil {
		return
	}

	g.cache.Put(id, gamecache.WatchedGame{Fen: rec.Fen, Lm: rec.Uci})

	payload, err := wire.EncodeFen(wire.FenMessage{Id: id.String(), Fen: rec.Fen, Lm: rec.Uci})
	if err != nil {
		return
	}
	g.hub.TellGame(id, payload)
}
