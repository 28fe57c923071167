package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lichess-org/lila-ws/internal/model"
)

type recordingResolver struct {
	mu      sync.Mutex
	results map[model.SocketId]bool
}

func newRecordingResolver() *recordingResolver {
	return &recordingResolver{results: make(map[model.SocketId]bool)}
}

func (r *recordingResolver) ResolveSession(id model.SocketId, uid model.UserId, authenticated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[id] = authenticated
}

func (r *recordingResolver) get(id model.SocketId) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.results[id]
	return v, ok
}

func TestWorkerResolvesMissingCookieAsAnonymous(t *testing.T) {
	w := NewWorker(nil)
	resolver := newRecordingResolver()

	requests := make(chan LookupRequest, 1)
	requests <- LookupRequest{SocketId: 1, Cookie: "no lila2 here"}
	close(requests)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Run(ctx, requests, resolver)

	authenticated, ok := resolver.get(1)
	require.True(t, ok)
	assert.False(t, authenticated)
}

func TestWorkerStopsOnContextCancellation(t *testing.T) {
	w := NewWorker(nil)
	resolver := newRecordingResolver()
	requests := make(chan LookupRequest)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, requests, resolver)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
