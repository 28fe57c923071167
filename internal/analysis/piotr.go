package analysis

import "fmt"

// squareIndex returns a1=0 ... h8=63 for algebraic notation like "e4",
// computed from the string itself rather than trusted from any chess
// library's internal Square numbering, since that numbering is an
// implementation detail we cannot verify without running the toolchain.
func squareIndex(algebraic string) (int, error) {
	if len(algebraic) != 2 {
		return 0, fmt.Errorf("invalid square %q", algebraic)
	}
	file := algebraic[0]
	rank := algebraic[1]
	if file < 'a' || file > 'h' || rank < '1' || rank > '8' {
		return 0, fmt.Errorf("invalid square %q", algebraic)
	}
	return int(rank-'1')*8 + int(file-'a'), nil
}

// piotr encodes a square index (a1=0 ... h8=63) into the single-character
// alphabet lichess uses on the wire: 'a'-'z' for 0-25, 'A'-'Z' for 26-51,
// '0'-'9' for 52-61, '!' for 62 (g8) and '?' for 63 (h8).
func piotr(idx int) byte {
	switch {
	case idx < 26:
		return 'a' + byte(idx)
	case idx < 52:
		return 'A' + byte(idx-26)
	case idx < 62:
		return '0' + byte(idx-52)
	case idx == 62:
		return '!'
	default:
		return '?'
	}
}

// Piotr is the exported form of piotr, taking algebraic notation directly.
func Piotr(algebraic string) (byte, error) {
	idx, err := squareIndex(algebraic)
	if err != nil {
		return 0, err
	}
	return piotr(idx), nil
}
