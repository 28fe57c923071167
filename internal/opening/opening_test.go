package opening

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupStartPosition(t *testing.T) {
	o, ok := Lookup(EPD("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"))
	assert.True(t, ok)
	assert.Equal(t, "A00", o.Eco)
}

func TestLookupSicilian(t *testing.T) {
	o, ok := Lookup(EPD("rnbqkbnr/pp1ppppp/8/2p5/4P3/8/PPPP1PPP/RNBQKBNR w KQkq c6 0 2"))
	assert.True(t, ok)
	assert.Equal(t, "Sicilian Defense", o.Name)
}

func TestLookupUnknownPosition(t *testing.T) {
	_, ok := Lookup(EPD("8/8/8/8/8/8/8/8 w - - 0 1"))
	assert.False(t, ok)
}

func TestEPDStripsMoveCounters(t *testing.T) {
	full := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 99 50"
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -", EPD(full))
}
