package socket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lichess-org/lila-ws/internal/bus"
	"github.com/lichess-org/lila-ws/internal/gamecache"
	"github.com/lichess-org/lila-ws/internal/hub"
	"github.com/lichess-org/lila-ws/internal/model"
	"github.com/lichess-org/lila-ws/internal/ratelimit"
	"github.com/lichess-org/lila-ws/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *Gateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New(zerolog.Nop())
	cache, err := gamecache.New()
	require.NoError(t, err)
	limiter := ratelimit.New(zerolog.Nop(), 1000)
	lookups := make(chan session.LookupRequest, 16)
	outbound := bus.NewOutbound()
	t.Cleanup(outbound.Close)

	gw := NewGateway(zerolog.Nop(), zerolog.Nop(), h, cache, limiter, lookups, outbound, 40000)

	router := gin.New()
	router.GET("/socket", gw.ServeWS)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, gw
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestPingShortcutRepliesWithPong covers spec.md §8's ping/pong keep-alive
// path: the bare "null" string gets the bare "0" string back, no envelope.
func TestPingShortcutRepliesWithPong(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`null`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))
}

// TestStartWatchingCacheHitRepliesImmediately covers the cache-hit fast
// path: a game already in the watched-game cache gets its fen pushed to a
// new watcher without waiting on the backend.
func TestStartWatchingCacheHitRepliesImmediately(t *testing.T) {
	srv, gw := newTestServer(t)

	id, err := model.ParseGameId("abcd1234")
	require.NoError(t, err)
	gw.cache.Put(id, gamecache.WatchedGame{Fen: "8/8/8/8/8/8/8/8 w - - 0 1", Lm: "e2e4"})

	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"startWatching","d":"abcd1234"}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		T string          `json:"t"`
		D json.RawMessage `json:"d"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "fen", env.T)
	assert.Contains(t, string(env.D), "abcd1234")
}

// TestAnaDestsForStartingPosition covers spec.md §8.7's end-to-end
// scenario: legal destinations for the initial position come back as a
// "dests" envelope.
func TestAnaDestsForStartingPosition(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	msg := `{"t":"anaDests","d":{"variant":"standard","path":"","fen":"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		T string `json:"t"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "dests", env.T)
}

// TestOversizeMessageClosesConnection covers spec.md §4.3's >1024 byte
// size band: the socket is closed with 1009 rather than kept open.
func TestOversizeMessageClosesConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	big := strings.Repeat("a", maxMessageBytes+1)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseMessageTooBig, closeErr.Code)
}

// TestProtocolViolationClosesConnection covers an unrecognised tag: the
// closed set of known tags rejects anything else rather than ignoring it.
func TestProtocolViolationClosesConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"bogus"}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseProtocolError, closeErr.Code)
}

// TestRateLimitExceededDropsMessageAndKeepsSocketOpen covers the per-IP
// token bucket's boundary behaviour: once its tiny burst is spent, the next
// message is silently dropped (no reply, no close) and the socket keeps
// serving subsequent messages once it's back under budget.
func TestRateLimitExceededDropsMessageAndKeepsSocketOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := hub.New(zerolog.Nop())
	cache, err := gamecache.New()
	require.NoError(t, err)
	limiter := ratelimit.New(zerolog.Nop(), 2) // burst of two credits, refilled at 1 per 5s
	lookups := make(chan session.LookupRequest, 16)
	outbound := bus.NewOutbound()
	t.Cleanup(outbound.Close)

	gw := NewGateway(zerolog.Nop(), zerolog.Nop(), h, cache, limiter, lookups, outbound, 40000)
	id, err := model.ParseGameId("abcd1234")
	require.NoError(t, err)
	gw.cache.Put(id, gamecache.WatchedGame{Fen: "8/8/8/8/8/8/8/8 w - - 0 1", Lm: "e2e4"})

	router := gin.New()
	router.GET("/socket", gw.ServeWS)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)

	// Spend both credits of the burst; each still gets served normally.
	var data []byte
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`null`)))
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err = conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "0", string(data))
	}

	// The next message exceeds the budget: dropped, no reply of its own.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`null`)))

	// Once the bucket has had time to refill a credit, a further message
	// still gets served — the socket was never closed by the rate-limit
	// rejection, only that one message was swallowed.
	time.Sleep(5200 * time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"startWatching","d":"abcd1234"}`)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		T string `json:"t"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "fen", env.T)
}
