// ABOUTME: Protocol package documentation
// ABOUTME: Wire protocol implementation for Sendspin streaming
// Package protocol implements the Sendspin wire protocol.
//
// It provides the control message codec (JSON {type, payload} frames), the
// binary frame codec (tag + big-endian µs deadline + payload), role and
// format negotiation, the connection state machine, and a WebSocket client.
//
// Most users want the high-level pkg/sendspin API instead.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{
//	    Endpoint:       "localhost:8927",
//	    Name:           "Living Room",
//	    SupportedRoles: []string{"player@v1"},
//	})
//	err := client.Connect()
package protocol
