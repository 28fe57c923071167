package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise the bus against a real Redis instance and are
// skipped unless LILA_WS_TEST_REDIS_URL names one, the way integration tests gated on an
// external dependency are written throughout the teacher's test suite.
func dialTestBus(t *testing.T) *Bus {
	t.Helper()
	url := os.Getenv("LILA_WS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LILA_WS_TEST_REDIS_URL not set, skipping redis-backed bus test")
	}
	b, err := Dial(context.Background(), url, zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestIngressReceivesSiteOutMessages(t *testing.T) {
	b := dialTestBus(t)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, errc := b.Ingress(ctx)

	time.Sleep(100 * time.Millisecond) // let the subscription establish

	opts, err := redis.ParseURL(os.Getenv("LILA_WS_TEST_REDIS_URL"))
	require.NoError(t, err)
	raw := redis.NewClient(opts)
	defer raw.Close()
	require.NoError(t, raw.Publish(context.Background(), siteOutChannel, "mlat 12").Err())

	select {
	case msg := <-out:
		assert.Equal(t, "mlat 12", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	cancel()
	err = <-errc
	assert.NoError(t, err)
}

func TestPublishSiteInDeliversToSubscribers(t *testing.T) {
	b := dialTestBus(t)
	defer b.Close()

	opts, err := redis.ParseURL(os.Getenv("LILA_WS_TEST_REDIS_URL"))
	require.NoError(t, err)
	raw := redis.NewClient(opts)
	defer raw.Close()

	sub := raw.Subscribe(context.Background(), siteInChannel)
	defer sub.Close()
	time.Sleep(100 * time.Millisecond)

	pubCtx, pubCancel := context.WithTimeout(context.Background(), time.Second)
	defer pubCancel()
	require.NoError(t, b.PublishSiteIn(pubCtx, []byte("connect/thibault")))

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, "thibault")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestDialInvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), "not-a-url", zerolog.Nop())
	assert.Error(t, err)
}
