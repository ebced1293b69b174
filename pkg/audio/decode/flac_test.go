// ABOUTME: Tests for the FLAC decoder
// ABOUTME: Verifies codec header requirements and malformed input handling
package decode

import (
	"testing"

	"github.com/Sendspin/sendspin-go/pkg/audio"
)

func TestNewFLACRequiresHeader(t *testing.T) {
	_, err := NewFLAC(audio.Format{Codec: "flac", SampleRate: 48000, Channels: 2, BitDepth: 16})
	if err == nil {
		t.Fatal("expected error without codec header")
	}
}

func TestNewFLACRejectsWrongCodec(t *testing.T) {
	_, err := NewFLAC(audio.Format{Codec: "pcm", BitDepth: 16})
	if err == nil {
		t.Fatal("expected error for wrong codec")
	}
}

func TestNewFLACRejectsGarbageHeader(t *testing.T) {
	_, err := NewFLAC(audio.Format{
		Codec: "flac", SampleRate: 48000, Channels: 2, BitDepth: 16,
		CodecHeader: []byte("not a flac stream"),
	})
	if err == nil {
		t.Fatal("expected error for garbage header")
	}
}
