// ABOUTME: Audio output package
// ABOUTME: Playback backends for decoded PCM audio
// Package output provides audio playback backends.
//
// Oto renders through the ebitengine/oto library; Null discards samples for
// headless use.
package output
