// ABOUTME: High-level Server API for Sendspin streaming
// ABOUTME: Streams timestamped audio to many clients with per-client formats
package sendspin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-go/internal/discovery"
	"github.com/Sendspin/sendspin-go/internal/metrics"
	"github.com/Sendspin/sendspin-go/pkg/audio"
	"github.com/Sendspin/sendspin-go/pkg/audio/encode"
	"github.com/Sendspin/sendspin-go/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// ChunkDuration is the audio slice the engine emits per tick.
	ChunkDuration = 20 * time.Millisecond

	// BufferAhead is how far in the future chunk deadlines are stamped,
	// giving clients time to buffer and schedule.
	BufferAhead = 500 * time.Millisecond
)

// serverRoles are the role versions this server can activate.
var serverRoles = []string{"player@v1", "controller@v1", "metadata@v1", "artwork@v1", "visualizer@v1"}

// ServerConfig configures a Sendspin server
type ServerConfig struct {
	// Port to listen on (default: 8927)
	Port int

	// Name of the server for identification
	Name string

	// Source is the audio to stream (required)
	Source AudioSource

	// EnableMDNS advertises the server via mDNS
	EnableMDNS bool

	// Metrics receives streaming instrumentation; nil disables it.
	Metrics *metrics.Metrics

	// Debug enables debug logging
	Debug bool
}

// Server streams synchronized audio to Sendspin clients.
type Server struct {
	config   ServerConfig
	serverID string

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*serverClient
	clientsMu sync.RWMutex

	// Server loop clock origin; all wire timestamps are µs since this.
	clockStart time.Time

	groupState string

	audioSource AudioSource
	mdnsManager *discovery.Manager

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// serverClient is one connected client.
type serverClient struct {
	ID    string
	Name  string
	Conn  *websocket.Conn
	Roles []string

	Support *protocol.PlayerV1Support

	// State
	State  string
	Volume float64
	Muted  bool

	// Negotiated format and its encoder
	Format  protocol.AudioFormat
	Encoder encode.Encoder

	sendChan chan interface{}

	mu sync.RWMutex
}

// ClientInfo is a snapshot of a connected client for status displays.
type ClientInfo struct {
	ID     string
	Name   string
	State  string
	Volume float64
	Muted  bool
	Codec  string
}

// NewServer creates a new Sendspin server
func NewServer(config ServerConfig) (*Server, error) {
	if config.Port == 0 {
		config.Port = 8927
	}
	if config.Name == "" {
		config.Name = "Sendspin Server"
	}
	if config.Source == nil {
		return nil, fmt.Errorf("audio source is required")
	}

	s := &Server{
		config:      config,
		serverID:    uuid.New().String(),
		mux:         http.NewServeMux(),
		audioSource: config.Source,
		groupState:  "playing",
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Local-network deployments accept all origins.
				return true
			},
		},
		clients:    make(map[string]*serverClient),
		clockStart: time.Now(),
		stopChan:   make(chan struct{}),
	}
	return s, nil
}

// Start starts the server and begins streaming. It blocks until Stop.
func (s *Server) Start() error {
	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)
	log.Printf("Audio source: %dHz/%dch", s.audioSource.SampleRate(), s.audioSource.Channels())

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			ServerMode:  true,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		}
	}

	s.mux.HandleFunc("/sendspin", s.handleWebSocket)
	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.streamAudio()
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("WebSocket server listening on %s", addr)

	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		return err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.sayGoodbye("shutdown")

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := s.audioSource.Close(); err != nil {
		log.Printf("Error closing audio source: %v", err)
	}

	s.wg.Wait()
	log.Printf("Server stopped cleanly")
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Clients returns information about all connected clients
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		c.mu.RLock()
		clients = append(clients, ClientInfo{
			ID:     c.ID,
			Name:   c.Name,
			State:  c.State,
			Volume: c.Volume,
			Muted:  c.Muted,
			Codec:  c.Format.Codec,
		})
		c.mu.RUnlock()
	}
	return clients
}

// GroupState returns the shared playback state.
func (s *Server) GroupState() string {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return s.groupState
}

// streamAudio emits one chunk per tick while the group is playing.
func (s *Server) streamAudio() {
	log.Printf("Audio streaming started")

	ticker := time.NewTicker(ChunkDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.GroupState() == "playing" {
				s.generateAndSendChunk()
			}
		case <-s.stopChan:
			log.Printf("Audio streaming stopping")
			return
		}
	}
}

// generateAndSendChunk reads one chunk from the source and fans it out,
// encoded per client, stamped with a deadline BufferAhead in the future.
func (s *Server) generateAndSendChunk() {
	deadline := s.ClockMicros() + BufferAhead.Microseconds()

	chunkFrames := s.audioSource.SampleRate() * int(ChunkDuration.Milliseconds()) / 1000
	samples := make([]int32, chunkFrames*s.audioSource.Channels())
	n, err := s.audioSource.Read(samples)
	if err != nil {
		log.Printf("Error reading audio source: %v", err)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		c.mu.RLock()
		encoder := c.Encoder
		c.mu.RUnlock()
		if encoder == nil {
			continue
		}

		audioData, err := encoder.Encode(samples[:n])
		if err != nil {
			log.Printf("Encode error for %s: %v", c.Name, err)
			continue
		}

		frame := protocol.EncodeBinary(protocol.TagAudioChunk, deadline, audioData)
		if err := s.sendBinary(c, frame); err != nil {
			if s.config.Debug {
				log.Printf("Error sending audio to %s: %v", c.Name, err)
			}
			continue
		}
		if s.config.Metrics != nil {
			s.config.Metrics.ChunkSent(len(frame))
		}
	}
}

// handleWebSocket upgrades and hands the connection off.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection runs one client's session: handshake, negotiation,
// message loop, teardown.
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	hello, err := s.awaitHello(conn)
	if err != nil {
		log.Printf("Handshake failed: %v", err)
		return
	}

	activeRoles, err := protocol.SelectRoles(hello.SupportedRoles, serverRoles)
	if err != nil {
		log.Printf("Role negotiation failed for %s: %v", hello.Name, err)
		return
	}

	clientID := hello.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}

	c := &serverClient{
		ID:       clientID,
		Name:     hello.Name,
		Conn:     conn,
		Roles:    activeRoles,
		Support:  hello.PlayerV1Support,
		State:    "stopped",
		Volume:   1.0,
		sendChan: make(chan interface{}, 100),
	}

	s.clientsMu.Lock()
	if _, exists := s.clients[clientID]; exists {
		s.clientsMu.Unlock()
		log.Printf("Client ID %s already connected, rejecting duplicate", clientID)
		return
	}
	s.clients[clientID] = c
	s.clientsMu.Unlock()
	if s.config.Metrics != nil {
		s.config.Metrics.SetConnectedClients(s.clientCount())
	}

	defer func() {
		s.removeClient(c)
		log.Printf("Client disconnected: %s", c.Name)
	}()

	serverHello := protocol.ServerHello{
		ClientID:         clientID,
		ActiveRoles:      activeRoles,
		ServerID:         s.serverID,
		Name:             s.config.Name,
		Version:          ProtocolVersion,
		ConnectionReason: "playback",
	}
	if err := s.sendMessage(c, protocol.TypeServerHello, serverHello); err != nil {
		log.Printf("Error sending server hello: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	if protocol.HasFamily(activeRoles, protocol.RolePlayer) {
		// On a failed negotiation the goodbye is queued and the socket
		// stays open until the client acts on it or disconnects.
		s.startStream(c)
	}

	s.broadcastGroupUpdate()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		s.handleClientMessage(c, data)
	}
}

// awaitHello reads and validates the client/hello.
func (s *Server) awaitHello(conn *websocket.Conn) (*protocol.ClientHello, error) {
	conn.SetReadDeadline(time.Now().Add(protocol.HandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}

	msg, derr := protocol.DecodeMessage(data)
	if derr != nil {
		return nil, derr
	}
	if msg.Type != protocol.TypeClientHello {
		return nil, fmt.Errorf("expected client/hello, got %s", msg.Type)
	}

	hello, ok := msg.Payload.(*protocol.ClientHello)
	if !ok || len(hello.SupportedRoles) == 0 {
		return nil, fmt.Errorf("client/hello missing supported_roles")
	}
	return hello, nil
}

// startStream negotiates a format and sends stream/start. Returns false when
// no intersection exists; the client then receives server/goodbye.
func (s *Server) startStream(c *serverClient) bool {
	var clientFormats []protocol.AudioFormat
	if c.Support != nil {
		clientFormats = c.Support.SupportedFormats
	}

	format, ok := protocol.SelectFormat(clientFormats, s.canProduce)
	if !ok {
		log.Printf("No producible format for %s", c.Name)
		s.sendMessage(c, protocol.TypeServerGoodbye, protocol.ServerGoodbye{Reason: "no_format"})
		return false
	}

	if !s.configureEncoder(c, format) {
		return false
	}

	s.sendStreamStart(c)
	s.sendMetadata(c)
	return true
}

// canProduce reports whether the engine can emit this format from the
// current source: PCM at source rate and channel count, or Opus when the
// source runs at 48kHz.
func (s *Server) canProduce(f protocol.AudioFormat) bool {
	if f.Channels != s.audioSource.Channels() {
		return false
	}
	switch f.Codec {
	case protocol.CodecPCM:
		return f.SampleRate == s.audioSource.SampleRate()
	case protocol.CodecOpus:
		return s.audioSource.SampleRate() == 48000
	default:
		return false
	}
}

func (s *Server) configureEncoder(c *serverClient, format protocol.AudioFormat) bool {
	encoder, err := encode.New(audio.Format{
		Codec:      format.Codec,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   format.BitDepth,
	})
	if err != nil {
		log.Printf("Failed to create %s encoder for %s: %v", format.Codec, c.Name, err)
		return false
	}

	c.mu.Lock()
	if c.Encoder != nil {
		c.Encoder.Close()
	}
	c.Format = format
	c.Encoder = encoder
	c.mu.Unlock()

	log.Printf("Client %s streaming %s %dHz/%dch/%dbit", c.Name, format.Codec, format.SampleRate, format.Channels, format.BitDepth)
	return true
}

func (s *Server) sendStreamStart(c *serverClient) {
	c.mu.RLock()
	format := c.Format
	c.mu.RUnlock()

	s.sendMessage(c, protocol.TypeStreamStart, protocol.StreamStart{
		Player: &protocol.StreamStartPlayer{
			Codec:      format.Codec,
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			BitDepth:   format.BitDepth,
		},
	})
}

func (s *Server) sendMetadata(c *serverClient) {
	title, artist, album := s.audioSource.Metadata()
	s.sendMessage(c, protocol.TypeServerState, protocol.ServerState{
		Metadata: &protocol.MetadataState{
			Timestamp: s.ClockMicros(),
			Title:     strPtr(title),
			Artist:    strPtr(artist),
			Album:     strPtr(album),
		},
	})
}

// clientWriter drains the client's send queue onto the socket.
func (s *Server) clientWriter(c *serverClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}

			switch v := msg.(type) {
			case []byte:
				c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.Conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					return
				}
			case protocol.Message:
				data, err := protocol.EncodeMessage(v)
				if err != nil {
					continue
				}
				c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// handleClientMessage routes one inbound control message.
func (s *Server) handleClientMessage(c *serverClient, data []byte) {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		log.Printf("Bad message from %s: %v", c.Name, err)
		return
	}

	switch msg.Type {
	case protocol.TypeClientTime:
		if t, ok := msg.Payload.(*protocol.ClientTime); ok {
			s.handleTimeSync(c, t)
		}
	case protocol.TypeClientState:
		if st, ok := msg.Payload.(*protocol.ClientState); ok {
			s.handleClientState(c, st)
		}
	case protocol.TypeClientCommand:
		if cmd, ok := msg.Payload.(*protocol.ClientCommand); ok {
			s.handleClientCommand(c, cmd)
		}
	case protocol.TypeStreamRequestFormat:
		if req, ok := msg.Payload.(*protocol.StreamRequestFormat); ok {
			s.handleRequestFormat(c, req)
		}
	case protocol.TypeClientGoodbye:
		if g, ok := msg.Payload.(*protocol.ClientGoodbye); ok {
			log.Printf("Client %s goodbye: %s", c.Name, g.Reason)
		}
	default:
		if s.config.Debug {
			log.Printf("Unhandled message type from %s: %s", c.Name, msg.Type)
		}
	}
}

// handleTimeSync echoes the probe with receive/transmit loop timestamps.
func (s *Server) handleTimeSync(c *serverClient, t *protocol.ClientTime) {
	serverRecv := s.ClockMicros()
	response := protocol.ServerTime{
		ClientTransmitted: t.ClientTransmitted,
		ServerReceived:    serverRecv,
		ServerTransmitted: s.ClockMicros(),
	}
	s.sendMessage(c, protocol.TypeServerTime, response)
	if s.config.Metrics != nil {
		s.config.Metrics.TimeSyncHandled()
	}
}

func (s *Server) handleClientState(c *serverClient, state *protocol.ClientState) {
	c.mu.Lock()
	c.State = state.State
	c.Volume = state.Volume
	c.Muted = state.Mute
	c.mu.Unlock()

	if s.config.Debug {
		log.Printf("Client %s state: %s (vol: %.2f, mute: %v)", c.Name, state.State, state.Volume, state.Mute)
	}
}

// handleClientCommand applies a controller command to the group.
func (s *Server) handleClientCommand(c *serverClient, cmd *protocol.ClientCommand) {
	if !protocol.HasFamily(c.Roles, protocol.RoleController) {
		log.Printf("Ignoring %s command from non-controller %s", cmd.Command, c.Name)
		return
	}

	switch cmd.Command {
	case "play":
		s.setGroupState("playing")
	case "pause":
		s.setGroupState("paused")
	case "seek":
		if seeker, ok := s.audioSource.(SeekableSource); ok {
			if err := seeker.Seek(cmd.PositionMicros); err != nil {
				log.Printf("Seek failed: %v", err)
				return
			}
			s.broadcastStreamClear()
		}
	case "next", "prev":
		if playlist, ok := s.audioSource.(PlaylistSource); ok {
			var err error
			if cmd.Command == "next" {
				err = playlist.Next()
			} else {
				err = playlist.Prev()
			}
			if err != nil {
				log.Printf("Track change failed: %v", err)
				return
			}
			s.broadcastStreamClear()
			s.broadcastMetadata()
		}
	default:
		log.Printf("Unknown command from %s: %s", c.Name, cmd.Command)
	}
}

// handleRequestFormat re-negotiates the client's stream against the
// requested descriptor and announces the result with a fresh stream/start.
func (s *Server) handleRequestFormat(c *serverClient, req *protocol.StreamRequestFormat) {
	if err := protocol.ValidateFormat(req.Format); err != nil {
		log.Printf("Rejecting format request from %s: %v", c.Name, err)
		return
	}
	if !s.canProduce(req.Format) {
		log.Printf("Cannot produce requested format for %s: %+v", c.Name, req.Format)
		return
	}
	if s.configureEncoder(c, req.Format) {
		s.sendStreamStart(c)
	}
}

func (s *Server) setGroupState(state string) {
	s.clientsMu.Lock()
	changed := s.groupState != state
	s.groupState = state
	s.clientsMu.Unlock()

	if changed {
		log.Printf("Group state: %s", state)
		s.broadcastGroupUpdate()
	}
}

// broadcastGroupUpdate announces membership and playback state to everyone.
func (s *Server) broadcastGroupUpdate() {
	s.clientsMu.RLock()
	members := make([]string, 0, len(s.clients))
	for id := range s.clients {
		members = append(members, id)
	}
	state := s.groupState
	targets := make([]*serverClient, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.RUnlock()

	update := protocol.GroupUpdate{
		Members:    members,
		GroupState: state,
		GroupID:    s.serverID,
		GroupName:  s.config.Name,
	}
	for _, c := range targets {
		s.sendMessage(c, protocol.TypeGroupUpdate, update)
	}
}

// broadcastStreamClear tells every player to drop queued audio (seek).
func (s *Server) broadcastStreamClear() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.sendMessage(c, protocol.TypeStreamClear, protocol.StreamClear{})
	}
}

// broadcastStreamEnd tells every player to drain and stop.
func (s *Server) broadcastStreamEnd() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.sendMessage(c, protocol.TypeStreamEnd, protocol.StreamEnd{})
	}
}

// EndStream announces stream/end to all connected players.
func (s *Server) EndStream() {
	s.broadcastStreamEnd()
}

func (s *Server) broadcastMetadata() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.sendMetadata(c)
	}
}

// sayGoodbye sends server/goodbye to every client before shutdown.
func (s *Server) sayGoodbye(reason string) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.sendMessage(c, protocol.TypeServerGoodbye, protocol.ServerGoodbye{Reason: reason})
	}
}

// removeClient unregisters a client and releases its encoder.
func (s *Server) removeClient(c *serverClient) {
	s.clientsMu.Lock()
	c.mu.Lock()
	if c.Encoder != nil {
		c.Encoder.Close()
		c.Encoder = nil
	}
	c.mu.Unlock()
	delete(s.clients, c.ID)
	close(c.sendChan)
	s.clientsMu.Unlock()

	if s.config.Metrics != nil {
		s.config.Metrics.SetConnectedClients(s.clientCount())
	}
	s.broadcastGroupUpdate()
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// sendMessage queues a control message for a client.
func (s *Server) sendMessage(c *serverClient, msgType string, payload interface{}) error {
	msg := protocol.Message{Type: msgType, Payload: payload}
	select {
	case c.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// sendBinary queues a binary frame for a client.
func (s *Server) sendBinary(c *serverClient, data []byte) error {
	select {
	case c.sendChan <- data:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// ClockMicros returns the server loop clock in microseconds.
func (s *Server) ClockMicros() int64 {
	return time.Since(s.clockStart).Microseconds()
}

func strPtr(str string) *string {
	return &str
}
