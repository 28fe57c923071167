// Package bus is the gateway's connection to the backend's Redis pub/sub
// channels: it subscribes to site-out (backend -> gateway) and publishes
// to site-in (gateway -> backend). Adapted from the teacher's
// internal/cache.Cache for the connection-pool/timeout/retry dialing
// conventions, and from internal/events.Subscriber for the connect-then-
// subscribe-then-dispatch worker shape — but talking redis-go's PubSub API
// directly rather than NATS, matching the reference implementation's
// redis::Client + as_pubsub() usage. See SPEC_FULL.md C9/C11.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	siteOutChannel = "site-out"
	siteInChannel  = "site-in"
)

// Bus wraps a Redis client dedicated to the site-in/site-out channels.
type Bus struct {
	client *redis.Client
	log    zerolog.Logger
}

// Dial connects to redisURL and verifies reachability with a ping.
func Dial(ctx context.Context, redisURL string, log zerolog.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 0 // site-out subscription blocks indefinitely between messages
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 8 * time.Millisecond
	opts.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Bus{client: client, log: log.With().Str("component", "bus").Logger()}, nil
}

// Close releases the underlying Redis connections.
func (b *Bus) Close() error {
	return b.client.Close()
}

// PublishSiteIn publishes a gateway -> backend record.
func (b *Bus) PublishSiteIn(ctx context.Context, payload []byte) error {
	n, err := b.client.Publish(ctx, siteInChannel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish site-in: %w", err)
	}
	if n == 0 {
		b.log.Warn().Msg("backend missed a site-in message: no subscribers")
	}
	return nil
}

// Ingress subscribes to site-out and streams raw payloads on the returned
// channel until ctx is cancelled or the subscription fails. The channel
// is closed in both cases; a failure after ctx is still live is fatal to
// the process, matching spec.md's "any redis error terminates the
// process" design note — the caller is expected to log.Fatal on a
// non-nil error.
func (b *Bus) Ingress(ctx context.Context) (<-chan []byte, <-chan error) {
	out := make(chan []byte)
	errc := make(chan error, 1)

	sub := b.client.Subscribe(ctx, siteOutChannel)

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				errc <- nil
				return
			case msg, ok := <-ch:
				if !ok {
					errc <- fmt.Errorf("site-out subscription closed")
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					errc <- nil
					return
				}
			}
		}
	}()

	return out, errc
}

// RunEgress drains outbound — the unbounded channel every other component
// publishes gateway -> backend records into — and publishes each one to
// site-in until ctx is cancelled or the channel is closed. A publish error
// is returned to the caller, which per spec.md §4.8/§7 should treat it as
// fatal: a healthy deployment has its supervisor restart the process.
func (b *Bus) RunEgress(ctx context.Context, outbound <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-outbound:
			if !ok {
				return nil
			}
			if err := b.PublishSiteIn(ctx, []byte(line)); err != nil {
				return err
			}
		}
	}
}
