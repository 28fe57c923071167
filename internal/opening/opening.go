// Package opening provides a static EPD-keyed lookup of named chess
// openings, consulted by the analysis responder for positions reachable
// from the book.
//
// The production site generates its table from a much larger opening
// database at build time; this package embeds a representative subset
// (the first few moves of the most common ECO-classified openings) —
// enough to exercise the lookup end to end. See SPEC_FULL.md C3.
package opening

import (
	_ "embed"
	"encoding/json"
	"strings"
	"sync"
)

// Opening names a book position by its ECO code and conventional name.
type Opening struct {
	Eco  string `json:"eco"`
	Name string `json:"name"`
}

//go:embed book.json
var bookJSON []byte

var (
	once sync.Once
	book map[string]Opening
)

func load() {
	var entries map[string]Opening
	if err := json.Unmarshal(bookJSON, &entries); err != nil {
		panic("opening: malformed embedded book: " + err.Error())
	}
	book = entries
}

// Lookup returns the opening for the given EPD fingerprint (the FEN with
// the move counters and, for variants that don't affect book identity,
// pockets/remaining-checks stripped), if known.
func Lookup(epd string) (Opening, bool) {
	once.Do(load)
	o, ok := book[epd]
	return o, ok
}

// EPD reduces a full FEN to its position-identifying prefix: board,
// side to move, castling rights, and en passant square — the four
// space-separated fields EPD shares with FEN. A bracketed crazyhouse pocket
// on the board field ("...RNBQKBNR[Pn]") is removed; a three-check
// remaining-checks field falls away with the other trailing fields.
func EPD(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return fen
	}
	if i := strings.IndexByte(fields[0], '['); i >= 0 {
		fields[0] = fields[0][:i]
	}
	return strings.Join(fields[:4], " ")
}
