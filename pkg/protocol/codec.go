// ABOUTME: Control message codec for the text channel
// ABOUTME: Serializes and parses {type, payload} JSON frames with typed payloads
package protocol

import (
	"encoding/json"
)

// envelope is the raw wire form of a control message.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeMessage serializes a control message to a text frame.
func EncodeMessage(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, ProtocolErrorf("encode %s: %v", msg.Type, err)
	}
	return data, nil
}

// DecodeMessage parses a text frame into a Message with a concretely typed
// payload. Unknown types decode to a Message with a nil payload; whether an
// unknown type is an error depends on the connection state and is decided by
// the state machine, not here.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, ProtocolErrorf("malformed control frame: %v", err)
	}
	if env.Type == "" {
		return Message{}, ProtocolErrorf("control frame missing type field")
	}

	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: env.Type, Payload: payload}, nil
}

func decodePayload(msgType string, raw json.RawMessage) (interface{}, error) {
	var dst interface{}
	switch msgType {
	case TypeClientHello:
		dst = &ClientHello{}
	case TypeServerHello:
		dst = &ServerHello{}
	case TypeClientTime:
		dst = &ClientTime{}
	case TypeServerTime:
		dst = &ServerTime{}
	case TypeStreamStart:
		dst = &StreamStart{}
	case TypeStreamClear:
		dst = &StreamClear{}
	case TypeStreamEnd:
		dst = &StreamEnd{}
	case TypeStreamRequestFormat:
		dst = &StreamRequestFormat{}
	case TypeClientState:
		dst = &ClientState{}
	case TypeClientCommand:
		dst = &ClientCommand{}
	case TypeServerCommand:
		dst = &ServerCommand{}
	case TypeServerState:
		dst = &ServerState{}
	case TypeGroupUpdate:
		dst = &GroupUpdate{}
	case TypeServerGoodbye:
		dst = &ServerGoodbye{}
	case TypeClientGoodbye:
		dst = &ClientGoodbye{}
	default:
		return nil, nil
	}

	if raw != nil {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, ProtocolErrorf("malformed %s payload: %v", msgType, err)
		}
	}
	return dst, nil
}
