// ABOUTME: Audio encoder package
// ABOUTME: Provides Encoder interface and implementations for PCM and Opus
// Package encode provides audio encoders for the formats a Sendspin server
// can produce.
//
// Supports: PCM (16/24/32-bit little-endian), Opus.
//
// Example:
//
//	encoder, err := encode.New(format)
//	data, err := encoder.Encode(samples)
package encode
