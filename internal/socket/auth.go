package socket

import (
	"sync"

	"github.com/lichess-org/lila-ws/internal/model"
)

// authPhase is the connection's position in the deferred-authentication
// state machine from spec.md §4.2: a socket that presents a session cookie
// starts life Requested while the cookie is looked up against MongoDB off
// the hot path, then moves exactly once to either Authenticated(uid) or
// Anonymous; a socket without a cookie starts Anonymous.
type authPhase int

const (
	authRequested authPhase = iota
	authAuthenticated
	authAnonymous
)

// authState tracks a single connection's auth phase and the intents it
// received while still Requested — "notified" and "following_onlines" are
// the two messages spec.md says must be replayed, and only once, the
// moment the phase leaves Requested.
type authState struct {
	mu                      sync.Mutex
	phase                   authPhase
	uid                     model.UserId
	pendingNotified         bool
	pendingFollowingOnlines bool
}

// newAuthState starts a connection's auth phase. A socket with no session
// cookie has nothing to look up, so it starts (and stays) Anonymous; one
// that presents a cookie starts Requested until the session worker calls
// Resolve.
func newAuthState(hasCookie bool) *authState {
	if !hasCookie {
		return &authState{phase: authAnonymous}
	}
	return &authState{phase: authRequested}
}

// Authenticated reports the resolved user id, if any.
func (a *authState) Authenticated() (model.UserId, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uid, a.phase == authAuthenticated
}

// IsRequested reports whether the session lookup is still outstanding.
func (a *authState) IsRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase == authRequested
}

// deferredReplay is what the caller must do once a Resolve call actually
// transitions the phase out of Requested.
type deferredReplay struct {
	notified         bool
	followingOnlines bool
}

// Resolve transitions Requested -> Authenticated(uid) or Anonymous. It is
// idempotent: a phase already resolved is left untouched and no replay is
// returned, since spec.md requires the deferred intents fire exactly once.
func (a *authState) Resolve(uid model.UserId, authenticated bool) (deferredReplay, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != authRequested {
		return deferredReplay{}, false
	}

	if authenticated {
		a.phase = authAuthenticated
		a.uid = uid
	} else {
		a.phase = authAnonymous
	}

	replay := deferredReplay{notified: a.pendingNotified, followingOnlines: a.pendingFollowingOnlines}
	a.pendingNotified = false
	a.pendingFollowingOnlines = false
	return replay, true
}

// DeferNotified records a "notified" intent received while still
// Requested, to be replayed on resolution. If the phase has already
// resolved it reports false so the caller can act immediately instead.
func (a *authState) DeferNotified() (deferNeeded bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != authRequested {
		return false
	}
	a.pendingNotified = true
	return true
}

// DeferFollowingOnlines records a "following_onlines" intent the same way.
func (a *authState) DeferFollowingOnlines() (deferNeeded bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != authRequested {
		return false
	}
	a.pendingFollowingOnlines = true
	return true
}
