package wire

import (
	"encoding/json"
	"fmt"
)

// socketInEnvelope is a message the gateway sends down to a browser, tagged
// on "t" with its data under "d" — the `#[serde(tag = "t", content = "d")]`
// shape of the original protocol.
type socketInEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d"`
}

// PingShortcut and Pong are the two bare-string exceptions to
// the tagged envelope: the client sends the literal "null" as a ping
// shortcut and expects the literal "0" back as a pong.
const (
	PingShortcut = "null"
	Pong         = "0"
)

// FenMessage updates a watching client with a game's latest position.
type FenMessage struct {
	Id  string `json:"id"`
	Fen string `json:"fen"`
	Lm  string `json:"lm"`
}

func EncodeFen(msg FenMessage) ([]byte, error) {
	return encodeEnvelope("fen", msg)
}

// MoveLatencyMessage reports the backend's reported move latency in ms.
type MoveLatencyMessage struct {
	D uint32 `json:"d"`
}

func EncodeMoveLatency(value uint32) ([]byte, error) {
	return json.Marshal(socketInEnvelope{T: "mlat", D: mustRaw(value)})
}

// EncodeOpening renders a "getOpening" response.
func EncodeOpening(payload interface{}) ([]byte, error) {
	return encodeEnvelope("opening", payload)
}

// EncodeDests renders a "getDests" success response.
func EncodeDests(payload interface{}) ([]byte, error) {
	return encodeEnvelope("dests", payload)
}

// EncodeDestsFailure renders the "destsFailure" envelope spec.md §4.6
// returns when the FEN or variant can't be parsed.
func EncodeDestsFailure() ([]byte, error) {
	return json.Marshal(socketInEnvelope{T: "destsFailure", D: json.RawMessage("{}")})
}

// EncodeNode renders a "node" response for a successful playMove/playDrop.
func EncodeNode(payload interface{}) ([]byte, error) {
	return encodeEnvelope("node", payload)
}

// EncodeStepFailure renders the "stepFailure" envelope for an illegal or
// unparseable playMove/playDrop request.
func EncodeStepFailure() ([]byte, error) {
	return json.Marshal(socketInEnvelope{T: "stepFailure", D: json.RawMessage("{}")})
}

func encodeEnvelope(t string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(socketInEnvelope{T: t, D: raw})
}

func mustRaw(payload interface{}) json.RawMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return raw
}

// SocketOutKind identifies which variant of SocketOut a decoded client
// message holds. The taxonomy is closed per spec.md §4.1/Design Notes: an
// unrecognised tag is a protocol violation, not a value of this type.
type SocketOutKind string

const (
	SocketOutPing             SocketOutKind = "p"
	SocketOutNotified         SocketOutKind = "notified"
	SocketOutFollowingOnlines SocketOutKind = "following_onlines"
	SocketOutStartWatching    SocketOutKind = "startWatching"
	SocketOutMoveLatency      SocketOutKind = "moveLat"
	SocketOutOpening          SocketOutKind = "opening"
	SocketOutAnaDests         SocketOutKind = "anaDests"
	SocketOutAnaMove          SocketOutKind = "anaMove"
	SocketOutAnaDrop          SocketOutKind = "anaDrop"
	SocketOutEvalGet          SocketOutKind = "evalGet"
	SocketOutEvalPut          SocketOutKind = "evalPut"
)

// KnownSocketOutKinds is the closed set of tags the client may send, used
// to reject anything else as a protocol violation.
var KnownSocketOutKinds = map[SocketOutKind]bool{
	SocketOutPing:             true,
	SocketOutNotified:         true,
	SocketOutFollowingOnlines: true,
	SocketOutStartWatching:    true,
	SocketOutMoveLatency:      true,
	SocketOutOpening:          true,
	SocketOutAnaDests:         true,
	SocketOutAnaMove:          true,
	SocketOutAnaDrop:          true,
	SocketOutEvalGet:          true,
	SocketOutEvalPut:          true,
}

// SocketOut is a message received from a browser, tagged on "t".
type SocketOut struct {
	T SocketOutKind `json:"t"`

	D json.RawMessage `json:"d"`
}

// DecodeSocketOut parses one client-to-gateway message.
func DecodeSocketOut(data []byte) (SocketOut, error) {
	var out SocketOut
	err := json.Unmarshal(data, &out)
	return out, err
}

// DecodeStartWatching reads the space-separated game ids carried directly
// in D: the "startWatching" message has shape
// {"t":"startWatching","d":"<gameId> <gameId> ..."}.
func DecodeStartWatching(out SocketOut) (string, error) {
	var gameIds string
	err := json.Unmarshal(out.D, &gameIds)
	return gameIds, err
}

// DecodeMoveLatencySub reads the subscribe flag carried directly in D.
func DecodeMoveLatencySub(out SocketOut) (bool, error) {
	var subscribe bool
	err := json.Unmarshal(out.D, &subscribe)
	return subscribe, err
}

// DecodePingLag reads the optional integer lag carried directly in D; a
// plain "p" ping with no payload decodes to (0, false).
func DecodePingLag(out SocketOut) (int, bool) {
	if len(out.D) == 0 {
		return 0, false
	}
	var lag int
	if err := json.Unmarshal(out.D, &lag); err != nil {
		return 0, false
	}
	return lag, true
}

// AnalysisRequest is the common payload shape of getOpening/anaDests/
// anaMove/anaDrop: a FEN, a variant key, and a tree path to echo back.
type AnalysisRequest struct {
	Variant   string  `json:"variant"`
	Path      string  `json:"path"`
	Fen       string  `json:"fen"`
	ChapterId *string `json:"ch,omitempty"`
	Orig      string  `json:"orig,omitempty"`
	Dest      string  `json:"dest,omitempty"`
	Promotion string  `json:"promotion,omitempty"`
	Role      string  `json:"role,omitempty"`
	Pos       string  `json:"pos,omitempty"`
}

// DecodeAnalysisRequest reads one of getOpening/anaDests/anaMove/anaDrop's
// data payloads, all of which share the AnalysisRequest shape.
func DecodeAnalysisRequest(out SocketOut) (AnalysisRequest, error) {
	var req AnalysisRequest
	err := json.Unmarshal(out.D, &req)
	return req, err
}
