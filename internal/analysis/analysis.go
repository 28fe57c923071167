// Package analysis implements the gateway's direct-response WebSocket
// operations for the analysis board: opening lookups and legal-move
// ("dests") enumeration, plus move/drop application for the study/
// analysis-board editor. See SPEC_FULL.md C4.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"

	"github.com/lichess-org/lila-ws/internal/opening"
)

// GetOpeningRequest is the decoded "getOpening" client message.
type GetOpeningRequest struct {
	Variant Variant
	Path    string
	Fen     string
}

// OpeningResponse is returned to the client as part of "getOpening".
type OpeningResponse struct {
	Path    string           `json:"path"`
	Opening *opening.Opening `json:"opening,omitempty"`
}

// RespondOpening looks up the opening for the request's FEN, or nil if the
// variant isn't opening-sensible or the position isn't in the book.
func RespondOpening(req GetOpeningRequest) *OpeningResponse {
	if !IsOpeningSensible(req.Variant) {
		return nil
	}
	o, ok := opening.Lookup(opening.EPD(req.Fen))
	if !ok {
		return nil
	}
	return &OpeningResponse{Path: req.Path, Opening: &o}
}

// GetDestsRequest is the decoded "getDests" client message.
type GetDestsRequest struct {
	Variant   Variant
	Fen       string
	Path      string
	ChapterId *string
}

// DestsResponse is returned to the client as part of "getDests".
type DestsResponse struct {
	Path      string           `json:"path"`
	Dests     string           `json:"dests"`
	Opening   *opening.Opening `json:"opening,omitempty"`
	ChapterId *string          `json:"ch,omitempty"`
}

// ErrDests is returned when the FEN or variant can't produce a position.
var ErrDests = errors.New("invalid fen or variant for dests")

// RespondDests enumerates legal destinations for every origin square with
// at least one legal move, encoding each origin/destination square in the
// piotr alphabet. Groups are separated by a single space; there is no
// leading or trailing space.
func RespondDests(req GetDestsRequest) (DestsResponse, error) {
	if !SupportsLegalMoves(req.Variant) {
		return DestsResponse{}, fmt.Errorf("%w: %s has no legal-move support", ErrDests, req.Variant)
	}

	game, err := loadGame(req.Fen, req.Variant)
	if err != nil {
		return DestsResponse{}, fmt.Errorf("%w: %v", ErrDests, err)
	}

	dests, err := encodeDests(game)
	if err != nil {
		return DestsResponse{}, fmt.Errorf("%w: %v", ErrDests, err)
	}

	var o *opening.Opening
	if IsOpeningSensible(req.Variant) {
		if found, ok := opening.Lookup(opening.EPD(req.Fen)); ok {
			o = &found
		}
	}

	return DestsResponse{
		Path:      req.Path,
		Dests:     dests,
		Opening:   o,
		ChapterId: req.ChapterId,
	}, nil
}

// encodeDests groups the position's legal moves by origin square and
// piotr-encodes them: "<origin><dest1><dest2>... <origin2><dest1>...".
func encodeDests(game *chess.Game) (string, error) {
	moves := game.ValidMoves()

	byOrigin := make(map[string][]string)
	var order []string
	for _, m := range moves {
		from := m.S1().String()
		if _, seen := byOrigin[from]; !seen {
			order = append(order, from)
		}
		byOrigin[from] = append(byOrigin[from], m.S2().String())
	}

	var b strings.Builder
	first := true
	for _, from := range order {
		if !first {
			b.WriteByte(' ')
		}
		first = false

		fromPiotr, err := Piotr(from)
		if err != nil {
			return "", err
		}
		b.WriteByte(fromPiotr)

		for _, to := range byOrigin[from] {
			toPiotr, err := Piotr(to)
			if err != nil {
				return "", err
			}
			b.WriteByte(toPiotr)
		}
	}
	return b.String(), nil
}

// loadGame parses a FEN into a *chess.Game using standard chess movement
// rules. Callers must have already checked SupportsLegalMoves: crazyhouse/
// threeCheck/kingOfTheHill share standard movement and load fine here, but
// variants with genuinely different legality rules never reach this point.
func loadGame(fen string, _ Variant) (*chess.Game, error) {
	fenFn, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return chess.NewGame(fenFn), nil
}

// StepFailure is returned when a move or drop cannot be applied.
var StepFailure = errors.New("step failure")

// PlayMoveRequest is the decoded "playMove" client message.
type PlayMoveRequest struct {
	Orig      string
	Dest      string
	Variant   Variant
	Fen       string
	Path      string
	Promotion string // role name: "queen", "rook", "bishop", "knight"
	ChapterId *string
}

// Node is the new game node produced by applying a move or drop.
type Node struct {
	NodePath  string  `json:"path"`
	Branch    Branch  `json:"node"`
	ChapterId *string `json:"ch,omitempty"`
}

// Branch describes a single position reached by a move or drop.
type Branch struct {
	Id        string           `json:"id"` // uci of the move/drop that reached it
	Ply       int              `json:"ply"`
	Fen       string           `json:"fen"`
	Check     bool             `json:"check"`
	Dests     string           `json:"dests"`
	Opening   *opening.Opening `json:"opening,omitempty"`
	Drops     string           `json:"drops"`
	CrazyData string           `json:"crazyData"`
}

var promotionRoles = map[string]chess.PieceType{
	"queen":  chess.Queen,
	"rook":   chess.Rook,
	"bishop": chess.Bishop,
	"knight": chess.Knight,
}

// RespondMove applies orig->dest(=promotion) to the given FEN and returns
// the resulting node.
func RespondMove(req PlayMoveRequest) (Node, error) {
	if !SupportsLegalMoves(req.Variant) {
		return Node{}, fmt.Errorf("%w: %s has no legal-move support", StepFailure, req.Variant)
	}

	game, err := loadGame(req.Fen, req.Variant)
	if err != nil {
		return Node{}, fmt.Errorf("%w: %v", StepFailure, err)
	}

	var match *chess.Move
	for _, m := range game.ValidMoves() {
		if m.S1().String() != req.Orig || m.S2().String() != req.Dest {
			continue
		}
		if req.Promotion != "" {
			want, ok := promotionRoles[req.Promotion]
			if !ok || m.Promo() != want {
				continue
			}
		}
		match = m
		break
	}
	if match == nil {
		return Node{}, fmt.Errorf("%w: no legal move %s%s", StepFailure, req.Orig, req.Dest)
	}

	if err := game.Move(match); err != nil {
		return Node{}, fmt.Errorf("%w: %v", StepFailure, err)
	}

	return buildNode(game, match.String(), req.Path, req.Variant, req.ChapterId)
}

// PlayDropRequest is the decoded "playDrop" client message.
type PlayDropRequest struct {
	Role      string
	Square    string
	Variant   Variant
	Fen       string
	Path      string
	ChapterId *string
}

// RespondDrop places a pocket piece on an empty square of a crazyhouse
// position. notnil/chess has no notion of pockets or drops, so this
// mutates the FEN board field directly and re-parses: a best-effort
// approximation the backend should double-check before trusting, exactly
// as spec.md §9 anticipates for the operations the reference source left
// unimplemented.
func RespondDrop(req PlayDropRequest) (Node, error) {
	newFen, uci, err := applyDrop(req.Fen, req.Role, req.Square)
	if err != nil {
		return Node{}, fmt.Errorf("%w: %v", StepFailure, err)
	}

	fenFn, err := chess.FEN(newFen)
	if err != nil {
		return Node{}, fmt.Errorf("%w: %v", StepFailure, err)
	}
	game := chess.NewGame(fenFn)

	return buildNode(game, uci, req.Path, req.Variant, req.ChapterId)
}

func buildNode(game *chess.Game, uci, path string, variant Variant, chapterId *string) (Node, error) {
	fen := game.FEN()

	dests, err := encodeDests(game)
	if err != nil {
		return Node{}, fmt.Errorf("%w: %v", StepFailure, err)
	}

	var o *opening.Opening
	if IsOpeningSensible(variant) {
		if found, ok := opening.Lookup(opening.EPD(fen)); ok {
			o = &found
		}
	}

	return Node{
		NodePath: path,
		Branch: Branch{
			Id:        uci,
			Ply:       len(game.Moves()),
			Fen:       fen,
			Check:     game.Position().InCheck(),
			Dests:     dests,
			Opening:   o,
			Drops:     "",
			CrazyData: "",
		},
		ChapterId: chapterId,
	}, nil
}

var roleLetters = map[string]byte{
	"pawn": 'p', "knight": 'n', "bishop": 'b', "rook": 'r', "queen": 'q', "king": 'k',
}

// applyDrop rewrites the board field of fen to place role on square,
// assuming the side to move is dropping and the square is empty.
func applyDrop(fen, role, square string) (string, string, error) {
	letter, ok := roleLetters[role]
	if !ok {
		return "", "", fmt.Errorf("unknown role %q", role)
	}

	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", "", fmt.Errorf("malformed fen %q", fen)
	}
	if fields[1] == "w" {
		letter = byte(strings.ToUpper(string(letter))[0])
	}

	idx, err := squareIndex(square)
	if err != nil {
		return "", "", err
	}

	ranks, err := placeOnBoard(fields[0], idx, letter)
	if err != nil {
		return "", "", err
	}
	fields[0] = ranks

	return strings.Join(fields, " "), strings.ToUpper(string(roleLetters[role])) + "@" + square, nil
}

// placeOnBoard sets the piece at square index idx (a1=0...h8=63) in a FEN
// board field, expanding run-length digits as needed.
func placeOnBoard(board string, idx int, piece byte) (string, error) {
	ranksStr := strings.Split(board, "/")
	if len(ranksStr) != 8 {
		return "", fmt.Errorf("malformed board field %q", board)
	}

	targetRank := 7 - idx/8
	targetFile := idx % 8

	squares := make([]byte, 8)
	files := 0
	for _, c := range ranksStr[targetRank] {
		if c >= '1' && c <= '8' {
			n := int(c - '0')
			for i := 0; i < n; i++ {
				squares[files] = '1'
				files++
			}
		} else {
			squares[files] = byte(c)
			files++
		}
	}
	if files != 8 {
		return "", fmt.Errorf("malformed rank %q", ranksStr[targetRank])
	}
	squares[targetFile] = piece

	var b strings.Builder
	run := 0
	for _, sq := range squares {
		if sq == '1' {
			run++
			continue
		}
		if run > 0 {
			fmt.Fprintf(&b, "%d", run)
			run = 0
		}
		b.WriteByte(sq)
	}
	if run > 0 {
		fmt.Fprintf(&b, "%d", run)
	}
	ranksStr[targetRank] = b.String()

	return strings.Join(ranksStr, "/"), nil
}
