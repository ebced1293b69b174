// ABOUTME: Library version constants
// ABOUTME: Protocol and release version identifiers
package sendspin

const (
	// Version is the library release version.
	Version = "1.0.0"

	// ProtocolVersion is the Sendspin protocol version implemented.
	ProtocolVersion = 1
)
