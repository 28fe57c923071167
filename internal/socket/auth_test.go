package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lichess-org/lila-ws/internal/model"
)

func TestNewAuthStateWithoutCookieStartsAnonymous(t *testing.T) {
	a := newAuthState(false)
	assert.False(t, a.IsRequested())
	_, ok := a.Authenticated()
	assert.False(t, ok)
}

func TestNewAuthStateWithCookieStartsRequested(t *testing.T) {
	a := newAuthState(true)
	assert.True(t, a.IsRequested())
}

func TestResolveAuthenticated(t *testing.T) {
	a := newAuthState(true)

	replay, transitioned := a.Resolve(model.UserId("thibault"), true)
	require.True(t, transitioned)
	assert.False(t, replay.notified)
	assert.False(t, replay.followingOnlines)

	uid, ok := a.Authenticated()
	require.True(t, ok)
	assert.Equal(t, model.UserId("thibault"), uid)
}

func TestResolveAnonymous(t *testing.T) {
	a := newAuthState(true)

	_, transitioned := a.Resolve("", false)
	require.True(t, transitioned)

	_, ok := a.Authenticated()
	assert.False(t, ok)
}

func TestResolveIsIdempotent(t *testing.T) {
	a := newAuthState(true)

	_, transitioned := a.Resolve(model.UserId("thibault"), true)
	require.True(t, transitioned)

	_, transitioned = a.Resolve(model.UserId("someoneelse"), true)
	assert.False(t, transitioned)

	uid, _ := a.Authenticated()
	assert.Equal(t, model.UserId("thibault"), uid)
}

func TestDeferredIntentsReplayOnceOnResolve(t *testing.T) {
	a := newAuthState(true)

	assert.True(t, a.DeferNotified())
	assert.True(t, a.DeferFollowingOnlines())

	replay, transitioned := a.Resolve(model.UserId("thibault"), true)
	require.True(t, transitioned)
	assert.True(t, replay.notified)
	assert.True(t, replay.followingOnlines)
}

func TestDeferIntentsOnAnonymousSocketReturnFalse(t *testing.T) {
	a := newAuthState(false)
	assert.False(t, a.DeferNotified())
	assert.False(t, a.DeferFollowingOnlines())
}
