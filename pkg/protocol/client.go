// ABOUTME: WebSocket client for Sendspin Protocol communication
// ABOUTME: Handles connection, handshake, message routing and lifecycle
package protocol

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// HandshakeTimeout bounds the wait for server/hello.
	HandshakeTimeout = 5 * time.Second

	// IdleTimeout closes the connection when no message arrives at all.
	IdleTimeout = 60 * time.Second
)

// Config holds client configuration
type Config struct {
	// Endpoint is the server address: "host:port" or a full ws:// URL.
	Endpoint string

	ClientID string
	Name     string
	Version  int

	DeviceInfo          DeviceInfo
	SupportedRoles      []string
	PlayerV1Support     *PlayerV1Support
	ArtworkV1Support    *ArtworkV1Support
	VisualizerV1Support *VisualizerV1Support

	// Debug enables per-message logging.
	Debug bool
}

// AudioChunk is a timestamped encoded audio frame from the binary channel.
type AudioChunk struct {
	DeadlineMicros int64 // server-loop µs at which the first sample plays
	Payload        []byte
}

// AuxFrame is an artwork or visualizer frame from the binary channel.
type AuxFrame struct {
	Tag            byte
	DeadlineMicros int64
	Payload        []byte
}

// Client is a Sendspin protocol client over a WebSocket transport. Inbound
// messages are validated against the connection state machine and fanned out
// on the exported channels; any illegal edge closes the connection with a
// typed error available from Err.
type Client struct {
	config Config
	conn   *websocket.Conn

	mu       sync.RWMutex
	state    State
	closeErr *Error

	// Identity and roles assigned by the server at handshake.
	assignedID  string
	activeRoles []string

	// Message channels
	AudioChunks  chan AudioChunk
	AuxFrames    chan AuxFrame
	TimeSyncResp chan ServerTime
	StreamStart  chan StreamStart
	StreamClear  chan StreamClear
	StreamEnd    chan StreamEnd
	ServerState  chan ServerState
	GroupUpdate  chan GroupUpdate
	Commands     chan PlayerCommand

	done     chan struct{}
	doneOnce sync.Once
}

// NewClient creates a client. Connect must be called before use.
func NewClient(config Config) *Client {
	if config.Version == 0 {
		config.Version = 1
	}
	return &Client{
		config:       config,
		state:        StateConnecting,
		AudioChunks:  make(chan AudioChunk, 100),
		AuxFrames:    make(chan AuxFrame, 16),
		TimeSyncResp: make(chan ServerTime, 10),
		StreamStart:  make(chan StreamStart, 1),
		StreamClear:  make(chan StreamClear, 10),
		StreamEnd:    make(chan StreamEnd, 1),
		ServerState:  make(chan ServerState, 10),
		GroupUpdate:  make(chan GroupUpdate, 10),
		Commands:     make(chan PlayerCommand, 10),
		done:         make(chan struct{}),
	}
}

// Connect dials the server, performs the handshake and starts the reader.
func (c *Client) Connect() error {
	endpoint := c.config.Endpoint
	if !strings.Contains(endpoint, "://") {
		u := url.URL{Scheme: "ws", Host: endpoint, Path: "/sendspin"}
		endpoint = u.String()
	}
	log.Printf("Connecting to %s", endpoint)

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return TransportError("dial failed", err)
	}
	c.conn = conn

	if err := c.handshake(); err != nil {
		c.failConnection(err)
		return err
	}

	go c.readLoop()
	return nil
}

// handshake drives Connecting -> HelloSent -> Ready.
func (c *Client) handshake() error {
	next, actions, terr := Transition(c.state, Event{Kind: EvTransportOpen})
	if terr != nil {
		return terr
	}
	c.setState(next)
	for _, act := range actions {
		if act == ActSendHello {
			if err := c.sendHello(); err != nil {
				return err
			}
		}
	}

	// Wait for server/hello.
	c.conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return HandshakeErrorf("no server/hello: %v", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	msg, derr := DecodeMessage(data)
	if derr != nil {
		return HandshakeErrorf("malformed server/hello: %v", derr)
	}

	ev, ok := EventForMessage(msg)
	if !ok {
		return HandshakeErrorf("expected server/hello, got %s", msg.Type)
	}
	next, _, terr = Transition(c.state, ev)
	if terr != nil {
		return terr
	}
	c.setState(next)

	hello, ok := msg.Payload.(*ServerHello)
	if !ok || hello.ClientID == "" {
		return HandshakeErrorf("server/hello missing client_id")
	}

	c.mu.Lock()
	c.assignedID = hello.ClientID
	c.activeRoles = hello.ActiveRoles
	c.mu.Unlock()

	log.Printf("Handshake complete: client_id=%s active_roles=%v", hello.ClientID, hello.ActiveRoles)
	return nil
}

func (c *Client) sendHello() error {
	hello := ClientHello{
		ClientID:            c.config.ClientID,
		Name:                c.config.Name,
		Version:             c.config.Version,
		SupportedRoles:      c.config.SupportedRoles,
		DeviceInfo:          &c.config.DeviceInfo,
		PlayerV1Support:     c.config.PlayerV1Support,
		ArtworkV1Support:    c.config.ArtworkV1Support,
		VisualizerV1Support: c.config.VisualizerV1Support,
	}
	return c.writeMessage(Message{Type: TypeClientHello, Payload: hello})
}

// readLoop consumes frames until the connection dies.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if netTimeout(err) {
				c.failConnection(TimeoutErrorf("idle timeout: no message in %v", IdleTimeout))
			} else {
				c.failConnection(TransportError("read failed", err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if !c.handleBinary(data) {
				return
			}
		case websocket.TextMessage:
			if !c.handleText(data) {
				return
			}
		default:
			log.Printf("Ignoring WebSocket frame type %d", messageType)
		}
	}
}

// handleBinary routes a binary frame. Returns false when the connection died.
func (c *Client) handleBinary(data []byte) bool {
	tag, deadline, payload, err := DecodeBinary(data)
	if err != nil {
		c.failConnection(err)
		return false
	}

	if !KnownTag(tag) {
		log.Printf("Ignoring binary frame with unknown tag 0x%02x (%d bytes)", tag, len(data))
		return true
	}

	kind := EvAudioChunk
	if tag != TagAudioChunk {
		kind = EvAuxFrame
	}
	next, actions, terr := Transition(c.State(), Event{Kind: kind})
	if terr != nil {
		c.failConnection(terr)
		return false
	}
	c.setState(next)

	for _, act := range actions {
		switch act {
		case ActEnqueueChunk:
			select {
			case c.AudioChunks <- AudioChunk{DeadlineMicros: deadline, Payload: payload}:
			case <-c.done:
				return false
			}
		case ActDeliverAux:
			select {
			case c.AuxFrames <- AuxFrame{Tag: tag, DeadlineMicros: deadline, Payload: payload}:
			default:
				// Aux buffers are bounded outside the audio path; shed when full.
				log.Printf("Aux frame buffer full, dropping tag 0x%02x", tag)
			}
		}
	}
	return true
}

// handleText routes a control message. Returns false when the connection died.
func (c *Client) handleText(data []byte) bool {
	msg, err := DecodeMessage(data)
	if err != nil {
		c.failConnection(err)
		return false
	}

	if c.config.Debug {
		log.Printf("Received message type: %s", msg.Type)
	}

	ev, ok := EventForMessage(msg)
	if !ok {
		c.failConnection(ProtocolErrorf("unknown message type %q", msg.Type))
		return false
	}

	next, actions, terr := Transition(c.State(), ev)
	if terr != nil {
		c.failConnection(terr)
		return false
	}
	c.setState(next)

	for _, act := range actions {
		if !c.performAction(act, msg) {
			return false
		}
	}
	if next == StateClosed {
		c.closeGracefully(msg)
		return false
	}
	return true
}

func (c *Client) performAction(act Action, msg Message) bool {
	switch act {
	case ActUpdateClock:
		if t, ok := msg.Payload.(*ServerTime); ok {
			select {
			case c.TimeSyncResp <- *t:
			default:
				log.Printf("Discarding server/time: response channel full")
			}
		}

	case ActConfigureStream:
		if s, ok := msg.Payload.(*StreamStart); ok {
			if s.Player == nil {
				c.failConnection(ProtocolErrorf("stream/start missing player object"))
				return false
			}
			select {
			case c.StreamStart <- *s:
			case <-c.done:
				return false
			}
		}

	case ActResetScheduler:
		if msg.Type == TypeStreamClear {
			if s, ok := msg.Payload.(*StreamClear); ok {
				select {
				case c.StreamClear <- *s:
				case <-c.done:
					return false
				}
			}
		}
		// For stream/start the reset rides along with the StreamStart event.

	case ActDrain:
		if s, ok := msg.Payload.(*StreamEnd); ok {
			select {
			case c.StreamEnd <- *s:
			case <-c.done:
				return false
			}
		}

	case ActDeliver:
		switch p := msg.Payload.(type) {
		case *ServerState:
			select {
			case c.ServerState <- *p:
			case <-time.After(100 * time.Millisecond):
				log.Printf("Server state channel full, dropping message")
			}
		case *GroupUpdate:
			select {
			case c.GroupUpdate <- *p:
			case <-time.After(100 * time.Millisecond):
				log.Printf("Group update channel full, dropping message")
			}
		case *ServerCommand:
			if p.Player != nil {
				select {
				case c.Commands <- *p.Player:
				case <-c.done:
					return false
				}
			}
		}
	}
	return true
}

// closeGracefully handles a server-initiated close (server/goodbye).
func (c *Client) closeGracefully(msg Message) {
	if g, ok := msg.Payload.(*ServerGoodbye); ok {
		log.Printf("Server goodbye: %s", g.Reason)
	}
	c.Close("")
}

// Drained signals that playback finished after stream/end.
func (c *Client) Drained() {
	next, _, terr := Transition(c.State(), Event{Kind: EvDrained})
	if terr != nil {
		return
	}
	c.setState(next)
	if next == StateClosed {
		c.Close("")
	}
}

// SendTime sends a client/time probe carrying t1.
func (c *Client) SendTime(t1 int64) error {
	return c.send(Message{Type: TypeClientTime, Payload: ClientTime{ClientTransmitted: t1}})
}

// SendState sends a client/state update.
func (c *Client) SendState(state ClientState) error {
	return c.send(Message{Type: TypeClientState, Payload: state})
}

// SendCommand sends a controller command.
func (c *Client) SendCommand(cmd ClientCommand) error {
	return c.send(Message{Type: TypeClientCommand, Payload: cmd})
}

// RequestFormat asks the server for a different stream format.
func (c *Client) RequestFormat(format AudioFormat) error {
	return c.send(Message{Type: TypeStreamRequestFormat, Payload: StreamRequestFormat{Format: format}})
}

// SendGoodbye announces a graceful disconnect.
func (c *Client) SendGoodbye(reason string) error {
	return c.send(Message{Type: TypeClientGoodbye, Payload: ClientGoodbye{Reason: reason}})
}

// send validates the message against the connection state and writes it.
func (c *Client) send(msg Message) error {
	if !CanSend(c.State(), msg.Type) {
		return ProtocolErrorf("%s not allowed in state %s", msg.Type, c.State())
	}
	return c.writeMessage(msg)
}

func (c *Client) writeMessage(msg Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return TransportError("not connected", nil)
	}
	if werr := c.conn.WriteMessage(websocket.TextMessage, data); werr != nil {
		return TransportError(fmt.Sprintf("write %s", msg.Type), werr)
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// AssignedID returns the client identity assigned by the server.
func (c *Client) AssignedID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.assignedID
}

// ActiveRoles returns the roles the server activated for this connection.
// Roles not in this list are disabled.
func (c *Client) ActiveRoles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeRoles
}

// HasActiveRole reports whether the given family was activated.
func (c *Client) HasActiveRole(family string) bool {
	return HasFamily(c.ActiveRoles(), family)
}

// Err returns the error that closed the connection, or nil after a clean
// close or while still open.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closeErr == nil {
		return nil
	}
	return c.closeErr
}

// Done is closed when the connection has fully shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

// failConnection records a fatal error and tears the connection down.
func (c *Client) failConnection(err error) {
	perr, ok := err.(*Error)
	if !ok {
		perr = TransportError("connection failure", err)
	}
	c.mu.Lock()
	if c.closeErr == nil {
		c.closeErr = perr
	}
	c.mu.Unlock()
	log.Printf("Connection failed: %v", perr)
	c.Close("")
}

// Close shuts the connection down, sending client/goodbye when possible.
// Reason may be empty.
func (c *Client) Close(reason string) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		state := c.state
		c.state = StateClosed

		// Writes are serialized under mu; say goodbye while we still hold it.
		if conn != nil {
			if state != StateClosed && state != StateConnecting {
				goodbye := Message{Type: TypeClientGoodbye, Payload: ClientGoodbye{Reason: reason}}
				if data, err := EncodeMessage(goodbye); err == nil {
					conn.SetWriteDeadline(time.Now().Add(time.Second))
					_ = conn.WriteMessage(websocket.TextMessage, data)
				}
			}
			conn.Close()
		}
		c.mu.Unlock()

		close(c.done)
		log.Printf("Connection closed")
	})
}

// netTimeout reports whether err is a read deadline expiry.
func netTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
