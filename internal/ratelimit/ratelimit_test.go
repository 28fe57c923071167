package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(zerolog.Nop(), 5)
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "token %d", i)
	}
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestAllowBlankIPBypasses(t *testing.T) {
	l := New(zerolog.Nop(), 1)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(""))
	}
}

func TestPerIPIsolation(t *testing.T) {
	l := New(zerolog.Nop(), 1)
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))
}

func TestGCEvictsIdleEntries(t *testing.T) {
	l := New(zerolog.Nop(), 5)
	l.Allow("1.2.3.4")
	assert.Equal(t, 1, l.Len())

	l.entries["1.2.3.4"].lastSeen = time.Now().Add(-2 * idleEvictAfter)
	l.GC()
	assert.Equal(t, 0, l.Len())
}
