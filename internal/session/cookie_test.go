package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSessionIDWithSignaturePrefix(t *testing.T) {
	// "abc123-" is a stand-in signature; everything after the first '-'
	// is the form-encoded body.
	id, ok := ParseSessionID("other=1; lila2=abc123-sessionId=mysession&csrfToken=xyz; more=2")
	assert.True(t, ok)
	assert.Equal(t, "mysession", id)
}

func TestParseSessionIDWithoutDash(t *testing.T) {
	id, ok := ParseSessionID("lila2=sessionId=mysession")
	assert.True(t, ok)
	assert.Equal(t, "mysession", id)
}

func TestParseSessionIDMissingCookie(t *testing.T) {
	_, ok := ParseSessionID("other=1; unrelated=2")
	assert.False(t, ok)
}

func TestParseSessionIDMissingSessionIdField(t *testing.T) {
	_, ok := ParseSessionID("lila2=abc-csrfToken=xyz")
	assert.False(t, ok)
}

func TestParseSessionIDEmptyHeader(t *testing.T) {
	_, ok := ParseSessionID("")
	assert.False(t, ok)
}
