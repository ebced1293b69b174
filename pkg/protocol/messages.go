// ABOUTME: Sendspin Protocol message type definitions
// ABOUTME: Defines envelope and payload structs for all control message types
package protocol

// Message type strings recognized by the codec.
const (
	TypeClientHello         = "client/hello"
	TypeServerHello         = "server/hello"
	TypeClientTime          = "client/time"
	TypeServerTime          = "server/time"
	TypeStreamStart         = "stream/start"
	TypeStreamClear         = "stream/clear"
	TypeStreamEnd           = "stream/end"
	TypeStreamRequestFormat = "stream/request-format"
	TypeClientState         = "client/state"
	TypeClientCommand       = "client/command"
	TypeServerCommand       = "server/command"
	TypeServerState         = "server/state"
	TypeGroupUpdate         = "group/update"
	TypeServerGoodbye       = "server/goodbye"
	TypeClientGoodbye       = "client/goodbye"
)

// Message is the top-level wrapper for all control messages.
// Payload holds the typed payload struct for the given Type.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID       string      `json:"client_id,omitempty"`
	Name           string      `json:"name,omitempty"`
	Version        int         `json:"version"`
	SupportedRoles []string    `json:"supported_roles"`
	DeviceInfo     *DeviceInfo `json:"device_info,omitempty"`
	// Support objects use versioned keys like "player@v1_support"
	PlayerV1Support     *PlayerV1Support     `json:"player@v1_support,omitempty"`
	ArtworkV1Support    *ArtworkV1Support    `json:"artwork@v1_support,omitempty"`
	VisualizerV1Support *VisualizerV1Support `json:"visualizer@v1_support,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// PlayerV1Support describes player@v1 capabilities
type PlayerV1Support struct {
	// SupportedFormats is ordered by client preference, most preferred first.
	SupportedFormats  []AudioFormat `json:"supported_formats"`
	BufferCapacity    int           `json:"buffer_capacity,omitempty"`
	SupportedCommands []string      `json:"supported_commands,omitempty"`
}

// ArtworkV1Support describes artwork@v1 capabilities
type ArtworkV1Support struct {
	Channels []ArtworkChannel `json:"channels"`
}

// ArtworkChannel describes a single artwork channel
type ArtworkChannel struct {
	Source      string `json:"source"` // "album", "artist", or "none"
	Format      string `json:"format"` // "jpeg", "png", or "bmp"
	MediaWidth  int    `json:"media_width"`
	MediaHeight int    `json:"media_height"`
}

// VisualizerV1Support describes visualizer@v1 capabilities
type VisualizerV1Support struct {
	BufferCapacity int `json:"buffer_capacity"`
}

// AudioFormat is the format descriptor negotiated between client and server
type AudioFormat struct {
	Codec      string `json:"codec"` // "pcm", "opus", "flac"
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello is the server's response to client/hello. ClientID is the
// identity the server assigned for this connection.
type ServerHello struct {
	ClientID         string   `json:"client_id"`
	ActiveRoles      []string `json:"active_roles"`
	ServerID         string   `json:"server_id,omitempty"`
	Name             string   `json:"name,omitempty"`
	Version          int      `json:"version,omitempty"`
	ConnectionReason string   `json:"connection_reason,omitempty"` // "discovery" or "playback"
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Unix microseconds
}

// ServerTime is the response to client/time. Server timestamps are
// server-loop microseconds.
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Echoed client timestamp
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// StreamStartPlayer contains the audio format details for the player role
type StreamStartPlayer struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	CodecHeader string `json:"codec_header,omitempty"` // Base64-encoded
}

// Format returns the player stream configuration as a format descriptor.
func (p *StreamStartPlayer) Format() AudioFormat {
	return AudioFormat{
		Codec:      p.Codec,
		Channels:   p.Channels,
		SampleRate: p.SampleRate,
		BitDepth:   p.BitDepth,
	}
}

// StreamStart notifies the client of the stream format
type StreamStart struct {
	Player *StreamStartPlayer `json:"player,omitempty"`
}

// StreamClear instructs clients to drop buffered audio (for seek)
type StreamClear struct {
	Roles []string `json:"roles,omitempty"`
}

// StreamEnd ends the stream; buffered audio drains to completion
type StreamEnd struct {
	Roles []string `json:"roles,omitempty"`
}

// StreamRequestFormat asks the server to switch the stream format
type StreamRequestFormat struct {
	Format AudioFormat `json:"format"`
}

// ClientState reports the player's current state
type ClientState struct {
	Volume float64 `json:"volume"` // 0..1
	Mute   bool    `json:"mute"`
	State  string  `json:"state"` // "playing", "paused", "stopped"
}

// ClientCommand carries a controller command to the server
type ClientCommand struct {
	Command string `json:"command"` // "play", "pause", "seek", "next", "prev"
	// PositionMicros is set when Command is "seek".
	PositionMicros int64 `json:"position_us,omitempty"`
}

// ServerCommand carries role-specific command objects to the client
type ServerCommand struct {
	Player *PlayerCommand `json:"player,omitempty"`
}

// PlayerCommand is a playback control command for the player role
type PlayerCommand struct {
	Command string  `json:"command"` // "volume" or "mute"
	Volume  float64 `json:"volume,omitempty"`
	Mute    bool    `json:"mute,omitempty"`
}

// ServerState carries role-specific state objects to the client
type ServerState struct {
	Metadata   *MetadataState   `json:"metadata,omitempty"`
	Controller *ControllerState `json:"controller,omitempty"`
}

// MetadataState contains track metadata (metadata role)
type MetadataState struct {
	Timestamp      int64   `json:"timestamp,omitempty"` // Server clock µs when valid
	Title          *string `json:"title,omitempty"`
	Artist         *string `json:"artist,omitempty"`
	Album          *string `json:"album,omitempty"`
	DurationMicros int64   `json:"duration_us,omitempty"`
	PositionMicros int64   `json:"position_us,omitempty"`
}

// ControllerState contains group controls (controller role)
type ControllerState struct {
	SupportedCommands []string `json:"supported_commands"`
	Volume            float64  `json:"volume"`
	Muted             bool     `json:"muted"`
}

// GroupUpdate announces group membership and playback state
type GroupUpdate struct {
	Members    []string `json:"members"`
	GroupState string   `json:"group_state"` // "playing", "paused", "stopped"
	GroupID    string   `json:"group_id,omitempty"`
	GroupName  string   `json:"group_name,omitempty"`
}

// ServerGoodbye is sent by the server before disconnecting a client
type ServerGoodbye struct {
	Reason string `json:"reason"` // e.g. "no_format", "shutdown"
}

// ClientGoodbye is sent before graceful disconnect.
// Reasons: "another_server", "shutdown", "restart", "user_request".
type ClientGoodbye struct {
	Reason string `json:"reason,omitempty"`
}
