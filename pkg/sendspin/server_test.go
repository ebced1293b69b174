// ABOUTME: Tests for the streaming server
// ABOUTME: Exercises handshake, negotiation, time sync and chunk delivery
package sendspin

import (
	"fmt"
	"testing"
	"time"

	"github.com/Sendspin/sendspin-go/pkg/protocol"
	"github.com/gorilla/websocket"
)

func TestNewServer(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("expected error without audio source")
	}

	srv, err := NewServer(ServerConfig{Source: NewToneSource(48000, 2)})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	if srv.config.Port != 8927 {
		t.Errorf("default port = %d", srv.config.Port)
	}
	if srv.config.Name != "Sendspin Server" {
		t.Errorf("default name = %s", srv.config.Name)
	}
}

// startTestServer runs a server on the port and waits for it to listen.
func startTestServer(t *testing.T, port int) *Server {
	t.Helper()

	srv, err := NewServer(ServerConfig{
		Port:   port,
		Name:   "Test Server",
		Source: NewToneSource(48000, 2),
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	go func() { _ = srv.Start() }()
	t.Cleanup(srv.Stop)
	time.Sleep(200 * time.Millisecond)
	return srv
}

// dialAndHello connects and completes the handshake, returning the raw
// connection and the decoded server/hello.
func dialAndHello(t *testing.T, port int, hello protocol.ClientHello) (*websocket.Conn, *protocol.ServerHello) {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://localhost:%d/sendspin", port), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	data, err := protocol.EncodeMessage(protocol.Message{Type: protocol.TypeClientHello, Payload: hello})
	if err != nil {
		t.Fatalf("encode hello: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("send hello: %v", err)
	}

	msg := readText(t, conn)
	if msg.Type != protocol.TypeServerHello {
		t.Fatalf("expected server/hello, got %s", msg.Type)
	}
	serverHello, ok := msg.Payload.(*protocol.ServerHello)
	if !ok {
		t.Fatalf("wrong payload type %T", msg.Payload)
	}
	return conn, serverHello
}

func readText(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, derr := protocol.DecodeMessage(data)
		if derr != nil {
			t.Fatalf("decode failed: %v", derr)
		}
		return msg
	}
}

// awaitType skips messages until one of the wanted type arrives.
func awaitType(t *testing.T, conn *websocket.Conn, wantType string) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readText(t, conn)
		if msg.Type == wantType {
			return msg
		}
	}
	t.Fatalf("never received %s", wantType)
	return protocol.Message{}
}

func playerHello(id string) protocol.ClientHello {
	return protocol.ClientHello{
		ClientID:       id,
		Name:           "Test Client",
		Version:        1,
		SupportedRoles: []string{"player@v1"},
		PlayerV1Support: &protocol.PlayerV1Support{
			SupportedFormats: []protocol.AudioFormat{
				{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 24},
			},
			BufferCapacity:    1048576,
			SupportedCommands: []string{"volume", "mute"},
		},
	}
}

func TestServerClientConnection(t *testing.T) {
	startTestServer(t, 8930)

	conn, serverHello := dialAndHello(t, 8930, playerHello("test-client-1"))

	if serverHello.ClientID != "test-client-1" {
		t.Errorf("assigned client_id = %s", serverHello.ClientID)
	}
	if len(serverHello.ActiveRoles) != 1 || serverHello.ActiveRoles[0] != "player@v1" {
		t.Errorf("active_roles = %v", serverHello.ActiveRoles)
	}
	if serverHello.Name != "Test Server" {
		t.Errorf("server name = %s", serverHello.Name)
	}

	msg := awaitType(t, conn, protocol.TypeStreamStart)
	start := msg.Payload.(*protocol.StreamStart)
	if start.Player == nil {
		t.Fatal("stream/start missing player")
	}
	if start.Player.Codec != "pcm" || start.Player.SampleRate != 48000 || start.Player.BitDepth != 24 {
		t.Errorf("negotiated format = %+v", start.Player)
	}

	awaitType(t, conn, protocol.TypeServerState)
	awaitType(t, conn, protocol.TypeGroupUpdate)

	// A binary audio chunk must arrive within a few ticks.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		tag, deadlineMicros, payload, derr := protocol.DecodeBinary(data)
		if derr != nil {
			t.Fatalf("bad binary frame: %v", derr)
		}
		if tag != protocol.TagAudioChunk {
			t.Errorf("tag = 0x%02x", tag)
		}
		if deadlineMicros <= 0 {
			t.Errorf("deadline = %d", deadlineMicros)
		}
		// 20ms stereo 24-bit at 48kHz: 960 frames x 2 ch x 3 bytes.
		if len(payload) != 960*2*3 {
			t.Errorf("payload size = %d", len(payload))
		}
		break
	}
}

func TestServerTimeSync(t *testing.T) {
	startTestServer(t, 8931)
	conn, _ := dialAndHello(t, 8931, playerHello("sync-client"))

	probe := protocol.Message{Type: protocol.TypeClientTime, Payload: protocol.ClientTime{ClientTransmitted: 424242}}
	data, _ := protocol.EncodeMessage(probe)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("send probe: %v", err)
	}

	msg := awaitType(t, conn, protocol.TypeServerTime)
	st := msg.Payload.(*protocol.ServerTime)
	if st.ClientTransmitted != 424242 {
		t.Errorf("echo = %d", st.ClientTransmitted)
	}
	if st.ServerReceived < 0 || st.ServerTransmitted < st.ServerReceived {
		t.Errorf("loop timestamps: recv=%d xmit=%d", st.ServerReceived, st.ServerTransmitted)
	}
}

func TestServerNoFormatIntersection(t *testing.T) {
	startTestServer(t, 8932)

	hello := playerHello("flac-only")
	hello.PlayerV1Support.SupportedFormats = []protocol.AudioFormat{
		{Codec: "flac", Channels: 2, SampleRate: 96000, BitDepth: 24},
	}
	conn, _ := dialAndHello(t, 8932, hello)

	msg := awaitType(t, conn, protocol.TypeServerGoodbye)
	goodbye := msg.Payload.(*protocol.ServerGoodbye)
	if goodbye.Reason != "no_format" {
		t.Errorf("reason = %s", goodbye.Reason)
	}
}

func TestServerDuplicateClientID(t *testing.T) {
	startTestServer(t, 8933)

	dialAndHello(t, 8933, playerHello("dup-id"))

	// Second connection with the same ID is dropped without server/hello.
	conn2, _, err := websocket.DefaultDialer.Dial("ws://localhost:8933/sendspin", nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn2.Close()

	data, _ := protocol.EncodeMessage(protocol.Message{Type: protocol.TypeClientHello, Payload: playerHello("dup-id")})
	if err := conn2.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("send hello: %v", err)
	}

	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn2.ReadMessage(); err == nil {
		t.Error("expected duplicate connection to be closed")
	}
}

func TestServerRoleNegotiationIdempotent(t *testing.T) {
	hello := []string{"player@v1", "player@v2", "metadata@v1", "hologram@v1"}

	first, err := protocol.SelectRoles(hello, serverRoles)
	if err != nil {
		t.Fatalf("negotiation failed: %v", err)
	}
	second, err := protocol.SelectRoles(hello, serverRoles)
	if err != nil {
		t.Fatalf("negotiation failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("not idempotent: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("not idempotent: %v vs %v", first, second)
		}
	}
}
