// ABOUTME: Binary frame codec for audio, artwork and visualizer channels
// ABOUTME: Frames are tag(1) | playback deadline i64 BE µs (8) | payload
package protocol

import (
	"encoding/binary"
)

// BinaryHeaderSize is the fixed prefix of every binary frame: a 1-byte
// message-type tag followed by an 8-byte big-endian playback deadline in
// server-loop microseconds.
const BinaryHeaderSize = 1 + 8

// Binary message-type tags.
const (
	TagAudioChunk      byte = 0x04
	TagArtworkChannel0 byte = 0x08
	TagArtworkChannel1 byte = 0x09
	TagArtworkChannel2 byte = 0x0A
	TagArtworkChannel3 byte = 0x0B
	TagVisualizer      byte = 0x10
)

// KnownTag reports whether tag is one this implementation understands.
// Frames with unknown tags are ignored but logged, not errors.
func KnownTag(tag byte) bool {
	switch {
	case tag == TagAudioChunk:
		return true
	case tag >= TagArtworkChannel0 && tag <= TagArtworkChannel3:
		return true
	case tag == TagVisualizer:
		return true
	}
	return false
}

// ArtworkChannelOf returns the artwork channel number (0..3) for an artwork
// tag, or -1 if tag is not an artwork tag.
func ArtworkChannelOf(tag byte) int {
	if tag >= TagArtworkChannel0 && tag <= TagArtworkChannel3 {
		return int(tag - TagArtworkChannel0)
	}
	return -1
}

// EncodeBinary frames a payload with its tag and playback deadline.
func EncodeBinary(tag byte, deadlineMicros int64, payload []byte) []byte {
	frame := make([]byte, BinaryHeaderSize+len(payload))
	frame[0] = tag
	binary.BigEndian.PutUint64(frame[1:BinaryHeaderSize], uint64(deadlineMicros))
	copy(frame[BinaryHeaderSize:], payload)
	return frame
}

// DecodeBinary splits a binary frame into tag, deadline and payload. A frame
// shorter than the header is a framing error and must terminate the
// connection. The payload aliases the input frame.
func DecodeBinary(frame []byte) (tag byte, deadlineMicros int64, payload []byte, err error) {
	if len(frame) < BinaryHeaderSize {
		return 0, 0, nil, ProtocolErrorf("binary frame too short: %d bytes", len(frame))
	}
	tag = frame[0]
	deadlineMicros = int64(binary.BigEndian.Uint64(frame[1:BinaryHeaderSize]))
	return tag, deadlineMicros, frame[BinaryHeaderSize:], nil
}
