// Package wire defines the records exchanged across the gateway's two
// boundaries: the backend pub/sub bus (LilaIn/LilaOut, matching site-in and
// site-out) and the browser WebSocket (SocketIn/SocketOut). The site-in/
// site-out grammar is the slash-delimited text format spec.md §4.1 specifies
// bit for bit, not a JSON envelope, because it is a compatibility contract
// with a backend that already speaks this exact wire format.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// LilaIn is a record published by the gateway to the backend on site-in.
// The record is opaque outside this package; build one with the
// constructors below and render it with its String method.
type LilaIn struct {
	line string
}

// String renders the record in the wire grammar of spec.md §4.1.
func (r LilaIn) String() string { return r.line }

func ConnectIn(user string) LilaIn {
	return LilaIn{line: "connect/" + user}
}

func DisconnectIn(user string) LilaIn {
	return LilaIn{line: "disconnect/" + user}
}

// DisconnectAllIn is published once at startup: the gateway's connection
// set was just reset to empty, so the backend should drop any stale
// presence it is holding for this process.
func DisconnectAllIn() LilaIn {
	return LilaIn{line: "disconnect/all"}
}

func WatchIn(game string) LilaIn {
	return LilaIn{line: "watch/" + game}
}

func UnwatchIn(game string) LilaIn {
	return LilaIn{line: "unwatch/" + game}
}

func NotifiedIn(user string) LilaIn {
	return LilaIn{line: "notified/" + user}
}

func FriendsIn(user string) LilaIn {
	return LilaIn{line: "friends/" + user}
}

func LagIn(user string, millis uint32) LilaIn {
	return LilaIn{line: "lag/" + user + "/" + strconv.FormatUint(uint64(millis), 10)}
}

func ConnectionsIn(count uint32) LilaIn {
	return LilaIn{line: "connections/" + strconv.FormatUint(uint64(count), 10)}
}

// LilaOutKind identifies which variant of LilaOut a decoded record holds.
type LilaOutKind string

const (
	LilaOutMlat     LilaOutKind = "mlat"
	LilaOutMove     LilaOutKind = "move"
	LilaOutTellUser LilaOutKind = "tell-user"
	LilaOutTellAll  LilaOutKind = "tell-all"
	LilaOutTellFlag LilaOutKind = "tell-flag"
)

// LilaOut is a record received from the backend on site-out. Only the
// fields relevant to Kind are populated.
type LilaOut struct {
	Kind LilaOutKind

	Mlat    uint32
	GameId  string
	Fen     string
	Uci     string
	Users   []string
	Flag    string

	// Payload is already a complete client-bound {"t":...,"d":...} envelope
	// in the backend's own bytes; the gateway forwards it to sockets as-is
	// and MUST NOT re-marshal it, per spec.md §4.1's verbatim-payload rule.
	Payload []byte
}

// DecodeLilaOut parses one site-out record per spec.md §4.1:
//
//	mlat <uint32>
//	move/<gameid>/<fen>/<uci>
//	tell-user/<uid1>,<uid2>,…/<raw-json-payload>
//	tell-all/<raw-json-payload>
//	tell-flag/<simul|tournament>/<raw-json-payload>
func DecodeLilaOut(line string) (LilaOut, error) {
	if rest, ok := cutPrefix(line, "mlat "); ok {
		v, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 32)
		if err != nil {
			return LilaOut{}, fmt.Errorf("decode mlat: %w", err)
		}
		return LilaOut{Kind: LilaOutMlat, Mlat: uint32(v)}, nil
	}

	if rest, ok := cutPrefix(line, "move/"); ok {
		// The fen field itself contains "/" (rank separators), so this can't
		// be a plain 3-way split: take the game id off the front and the uci
		// off the back, and whatever remains between them is the fen.
		firstSlash := strings.Index(rest, "/")
		lastSlash := strings.LastIndex(rest, "/")
		if firstSlash == -1 || lastSlash == firstSlash {
			return LilaOut{}, fmt.Errorf("decode move: malformed record %q", line)
		}
		return LilaOut{
			Kind:   LilaOutMove,
			GameId: rest[:firstSlash],
			Fen:    rest[firstSlash+1 : lastSlash],
			Uci:    rest[lastSlash+1:],
		}, nil
	}

	if rest, ok := cutPrefix(line, "tell-user/"); ok {
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return LilaOut{}, fmt.Errorf("decode tell-user: malformed record %q", line)
		}
		return LilaOut{Kind: LilaOutTellUser, Users: strings.Split(parts[0], ","), Payload: []byte(parts[1])}, nil
	}

	if rest, ok := cutPrefix(line, "tell-all/"); ok {
		return LilaOut{Kind: LilaOutTellAll, Payload: []byte(rest)}, nil
	}

	if rest, ok := cutPrefix(line, "tell-flag/"); ok {
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return LilaOut{}, fmt.Errorf("decode tell-flag: malformed record %q", line)
		}
		return LilaOut{Kind: LilaOutTellFlag, Flag: parts[0], Payload: []byte(parts[1])}, nil
	}

	return LilaOut{}, fmt.Errorf("decode site-out: unrecognised record %q", line)
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}
