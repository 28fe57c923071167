// Package model defines the small value types shared across the gateway:
// game and user identifiers, the server-sent channel flags, and the
// per-process socket identifier.
package model

import (
	"errors"
	"fmt"
)

// GameId is the 8-character, byte-exact identifier lichess uses for a game.
// It is deliberately a fixed-size value type (not a string alias) so it can
// be used as a map key and compared cheaply.
type GameId [8]byte

// ErrInvalidGameId is returned when a string cannot be parsed into a GameId.
var ErrInvalidGameId = errors.New("invalid game id")

// ParseGameId validates and converts s into a GameId. A valid id is exactly
// 8 bytes long.
func ParseGameId(s string) (GameId, error) {
	var g GameId
	if len(s) != len(g) {
		return g, fmt.Errorf("%w: %q", ErrInvalidGameId, s)
	}
	copy(g[:], s)
	return g, nil
}

// String returns the textual form of the id, trimming trailing zero bytes.
func (g GameId) String() string {
	n := len(g)
	for n > 0 && g[n-1] == 0 {
		n--
	}
	return string(g[:n])
}

// MarshalJSON renders the id as a plain JSON string, matching the
// `#[serde(transparent)]` wire shape of the original GameId.
func (g GameId) MarshalJSON() ([]byte, error) {
	return []byte(`"` + g.String() + `"`), nil
}

// UnmarshalJSON parses a plain JSON string into a GameId.
func (g *GameId) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("%w: not a string", ErrInvalidGameId)
	}
	parsed, err := ParseGameId(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// UserId is a case-preserved lichess username, 1 to 30 characters.
type UserId string

// ErrInvalidUserId is returned when a string fails UserId validation.
var ErrInvalidUserId = errors.New("invalid user id")

// ParseUserId validates s as a UserId.
func ParseUserId(s string) (UserId, error) {
	if len(s) == 0 || len(s) > 30 {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserId, s)
	}
	return UserId(s), nil
}

// Flag is a server-sent broadcast channel, dense enough to index an array.
type Flag int

const (
	FlagSimul Flag = iota
	FlagTournament
	flagCount
)

// FlagCount is the number of distinct flags, for sizing by_flag[flagCount].
const FlagCount = int(flagCount)

// ParseFlag maps the wire name of a flag to its Flag value.
func ParseFlag(s string) (Flag, error) {
	switch s {
	case "simul":
		return FlagSimul, nil
	case "tournament":
		return FlagTournament, nil
	default:
		return 0, fmt.Errorf("unknown flag %q", s)
	}
}

func (f Flag) String() string {
	switch f {
	case FlagSimul:
		return "simul"
	case FlagTournament:
		return "tournament"
	default:
		return "unknown"
	}
}

// SocketId is a monotonically increasing, process-lifetime unique id
// assigned to every accepted WebSocket connection. It is never reused.
type SocketId uint64
