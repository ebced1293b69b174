// ABOUTME: Audio decoder package for multiple codec support
// ABOUTME: Provides Decoder interface and implementations for PCM, Opus, FLAC
// Package decode provides audio decoders for the Sendspin wire codecs.
//
// Supports: PCM (16/24/32-bit little-endian), Opus, FLAC. An MP3 decoder is
// included for file-backed server sources.
//
// All decoders output int32 samples in 24-bit range for consistent hi-res
// audio processing.
//
// Example:
//
//	decoder, err := decode.New(format)
//	samples, err := decoder.Decode(chunk)
package decode
