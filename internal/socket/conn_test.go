package socket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lichess-org/lila-ws/internal/model"
)

// newConnPair upgrades a real TCP connection and returns the server-side
// wsConn alongside a plain client-side *websocket.Conn to exchange
// messages with it.
func newConnPair(t *testing.T) (*wsConn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverReady := make(chan *wsConn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		sc := newWSConn(model.SocketId(1), conn)
		serverReady <- sc
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return <-serverReady, client
}

func TestWSConnSendDeliversToPeer(t *testing.T) {
	sc, client := newConnPair(t)
	go sc.writePump()

	require.NoError(t, sc.Send([]byte(`{"t":"fen","d":{}}`)))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"t":"fen","d":{}}`, string(data))
}

func TestWSConnSendFailsAfterShutdown(t *testing.T) {
	sc, _ := newConnPair(t)
	go sc.writePump()

	sc.shutdown(websocket.CloseNormalClosure, "done")

	err := sc.Send([]byte("late"))
	assert.ErrorIs(t, err, errClosedSocket)
}

func TestWSConnSendFailsWhenQueueFull(t *testing.T) {
	sc, _ := newConnPair(t)
	// No writePump running: the channel fills and stays full.

	for i := 0; i < outboxCapacity; i++ {
		require.NoError(t, sc.Send([]byte("x")))
	}

	err := sc.Send([]byte("overflow"))
	assert.ErrorIs(t, err, errSendQueueFull)
}

func TestWSConnShutdownSendsCloseFrame(t *testing.T) {
	sc, client := newConnPair(t)
	go sc.writePump()

	sc.shutdown(websocket.CloseMessageTooBig, "too big")

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseMessageTooBig, closeErr.Code)
	assert.Equal(t, "too big", closeErr.Text)
}
