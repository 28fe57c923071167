package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These assertions mirror the reference implementation's own piotr unit
// test (analysis.rs) bit for bit.
func TestPiotrReferenceValues(t *testing.T) {
	cases := []struct {
		square string
		want   byte
	}{
		{"a1", 'a'},
		{"b4", 'z'},
		{"c4", 'A'},
		{"d7", 'Z'},
		{"e7", '0'},
		{"f8", '9'},
		{"g8", '!'},
		{"h8", '?'},
	}
	for _, c := range cases {
		got, err := Piotr(c.square)
		require.NoError(t, err, c.square)
		assert.Equal(t, c.want, got, c.square)
	}
}

func TestPiotrInvalidSquare(t *testing.T) {
	_, err := Piotr("z9")
	assert.Error(t, err)
	_, err = Piotr("e")
	assert.Error(t, err)
}
