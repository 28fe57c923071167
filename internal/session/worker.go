package session

import (
	"context"
	"time"

	"github.com/lichess-org/lila-ws/internal/model"
)

// LookupRequest pairs a newly opened socket with its raw Cookie header,
// queued by the socket handler's on-open path so the Mongo round trip
// never blocks the WebSocket accept loop.
type LookupRequest struct {
	SocketId model.SocketId
	Cookie   string
}

// Resolver is notified of a lookup's outcome. The socket handler/hub
// composition implements this to transition the deferred auth state
// machine (C8) under by_id's write lock.
type Resolver interface {
	ResolveSession(id model.SocketId, uid model.UserId, authenticated bool)
}

const lookupTimeout = 3 * time.Second

// Worker drains LookupRequests and resolves each against the Store.
type Worker struct {
	store *Store
}

// NewWorker builds a Worker backed by store.
func NewWorker(store *Store) *Worker {
	return &Worker{store: store}
}

// Run consumes requests until ctx is cancelled or requests is closed.
func (w *Worker) Run(ctx context.Context, requests <-chan LookupRequest, resolver Resolver) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			w.resolve(ctx, req, resolver)
		}
	}
}

func (w *Worker) resolve(ctx context.Context, req LookupRequest, resolver Resolver) {
	sessionID, found := ParseSessionID(req.Cookie)
	if !found {
		resolver.ResolveSession(req.SocketId, "", false)
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	uid, ok := w.store.Lookup(lookupCtx, sessionID)
	resolver.ResolveSession(req.SocketId, uid, ok)
}
