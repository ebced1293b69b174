// ABOUTME: Tests for Sendspin Protocol control messages
// ABOUTME: Verifies encode/decode round trips for every recognized type
package protocol

import (
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestControlMessageRoundTrip(t *testing.T) {
	messages := []Message{
		{Type: TypeClientHello, Payload: &ClientHello{
			ClientID:       "test-id",
			Name:           "Test Player",
			Version:        1,
			SupportedRoles: []string{"player@v1", "metadata@v1"},
			DeviceInfo: &DeviceInfo{
				ProductName:     "Test Product",
				Manufacturer:    "Test Mfg",
				SoftwareVersion: "0.1.0",
			},
			PlayerV1Support: &PlayerV1Support{
				SupportedFormats: []AudioFormat{
					{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 24},
					{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
				},
				BufferCapacity:    1048576,
				SupportedCommands: []string{"volume", "mute"},
			},
		}},
		{Type: TypeServerHello, Payload: &ServerHello{
			ClientID:    "assigned-id",
			ActiveRoles: []string{"player@v1"},
			ServerID:    "srv-1",
			Name:        "Test Server",
			Version:     1,
		}},
		{Type: TypeClientTime, Payload: &ClientTime{ClientTransmitted: 1723456789123456}},
		{Type: TypeServerTime, Payload: &ServerTime{
			ClientTransmitted: 1723456789123456,
			ServerReceived:    5000123,
			ServerTransmitted: 5000223,
		}},
		{Type: TypeStreamStart, Payload: &StreamStart{
			Player: &StreamStartPlayer{
				Codec: "flac", SampleRate: 96000, Channels: 2, BitDepth: 24,
				CodecHeader: "ZkxhQw==",
			},
		}},
		{Type: TypeStreamClear, Payload: &StreamClear{}},
		{Type: TypeStreamEnd, Payload: &StreamEnd{Roles: []string{"player"}}},
		{Type: TypeStreamRequestFormat, Payload: &StreamRequestFormat{
			Format: AudioFormat{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
		}},
		{Type: TypeClientState, Payload: &ClientState{Volume: 0.75, Mute: false, State: "playing"}},
		{Type: TypeClientCommand, Payload: &ClientCommand{Command: "seek", PositionMicros: 30000000}},
		{Type: TypeServerCommand, Payload: &ServerCommand{
			Player: &PlayerCommand{Command: "volume", Volume: 0.5},
		}},
		{Type: TypeServerState, Payload: &ServerState{
			Metadata: &MetadataState{
				Timestamp:      5000000,
				Title:          strPtr("Song"),
				Artist:         strPtr("Artist"),
				Album:          strPtr("Album"),
				DurationMicros: 180000000,
				PositionMicros: 42000000,
			},
		}},
		{Type: TypeGroupUpdate, Payload: &GroupUpdate{
			Members:    []string{"a", "b"},
			GroupState: "playing",
			GroupID:    "g-1",
		}},
		{Type: TypeServerGoodbye, Payload: &ServerGoodbye{Reason: "no_format"}},
		{Type: TypeClientGoodbye, Payload: &ClientGoodbye{Reason: "user_request"}},
	}

	for _, msg := range messages {
		t.Run(msg.Type, func(t *testing.T) {
			data, err := EncodeMessage(msg)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}

			decoded, err := DecodeMessage(data)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}

			if decoded.Type != msg.Type {
				t.Errorf("type mismatch: got %s, want %s", decoded.Type, msg.Type)
			}
			if !reflect.DeepEqual(decoded.Payload, msg.Payload) {
				t.Errorf("payload mismatch:\n got  %#v\n want %#v", decoded.Payload, msg.Payload)
			}
		})
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeMessage([]byte(`{"type": "client/time", "payload": {`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	if _, err := DecodeMessage([]byte(`{"payload": {}}`)); err == nil {
		t.Fatal("expected error for missing type field")
	}
}

func TestDecodeUnknownTypeHasNilPayload(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type": "future/thing", "payload": {"x": 1}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != "future/thing" {
		t.Errorf("got type %s", msg.Type)
	}
	if msg.Payload != nil {
		t.Errorf("expected nil payload for unknown type, got %#v", msg.Payload)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	data := []byte(`{"type": "server/time", "payload": {"client_transmitted": 1, "server_received": 2, "server_transmitted": 3, "future_field": true}}`)
	msg, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, ok := msg.Payload.(*ServerTime)
	if !ok {
		t.Fatalf("wrong payload type %T", msg.Payload)
	}
	if st.ServerReceived != 2 {
		t.Errorf("got server_received %d", st.ServerReceived)
	}
}
