package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// envelope wraps every message with its type. The payload is decoded in a
// second pass once the type is known.
type envelope struct {
	T Type            `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

type outEnvelope struct {
	T Type    `json:"t"`
	D Message `json:"d"`
}

// ProtocolError reports bytes that do not form a known, well-formed message.
// The connection that produced them must be closed.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is, or wraps, a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

var decoders = map[Type]func(json.RawMessage) (Message, error){
	TypeListLobbies:  decodeAs[ListLobbies],
	TypeCreateLobby:  decodeAs[CreateLobby],
	TypeJoinLobby:    decodeAs[JoinLobby],
	TypeLeaveLobby:   decodeAs[LeaveLobby],
	TypeReady:        decodeAs[Ready],
	TypeInput:        decodeAs[Input],
	TypeRejoin:       decodeAs[Rejoin],
	TypeLobbyList:    decodeAs[LobbyList],
	TypeLobbyCreated: decodeAs[LobbyCreated],
	TypeLobbyJoined:  decodeAs[LobbyJoined],
	TypeLobbyUpdate:  decodeAs[LobbyUpdate],
	TypeLobbyError:   decodeAs[LobbyError],
	TypePlayerJoined: decodeAs[PlayerJoined],
	TypePlayerLeft:   decodeAs[PlayerLeft],
	TypeGameStart:    decodeAs[GameStart],
	TypeState:        decodeAs[State],
	TypeGameOver:     decodeAs[GameOver],
	TypeVictory:      decodeAs[Victory],
}

// Encode serializes m into a single wire message.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("encode: nil message")
	}
	if _, ok := decoders[m.MessageType()]; !ok {
		return nil, fmt.Errorf("encode: unknown message type %q", m.MessageType())
	}
	data, err := json.Marshal(outEnvelope{T: m.MessageType(), D: m})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	return data, nil
}

// Decode parses one wire message. Unknown types, malformed JSON and unknown
// fields all fail with a *ProtocolError.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := strictUnmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Reason: "malformed envelope", Err: err}
	}
	if env.T == "" {
		return nil, &ProtocolError{Reason: "missing message type"}
	}
	decode, ok := decoders[env.T]
	if !ok {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown message type %q", env.T)}
	}
	m, err := decode(env.D)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("malformed %s payload", env.T), Err: err}
	}
	return m, nil
}

func decodeAs[T Message](raw json.RawMessage) (Message, error) {
	var m T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return m, nil
	}
	if err := strictUnmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data after message")
	}
	return nil
}
