// ABOUTME: Tests for format descriptor validation and selection
// ABOUTME: Verifies per-codec legality rules and client-preference ordering
package protocol

import "testing"

func TestValidateFormat(t *testing.T) {
	valid := []AudioFormat{
		{Codec: "pcm", Channels: 2, SampleRate: 44100, BitDepth: 16},
		{Codec: "pcm", Channels: 1, SampleRate: 192000, BitDepth: 32},
		{Codec: "pcm", Channels: 2, SampleRate: 96000, BitDepth: 24},
		{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
		{Codec: "opus", Channels: 1, SampleRate: 48000, BitDepth: 16},
		{Codec: "flac", Channels: 2, SampleRate: 88200, BitDepth: 24},
		{Codec: "flac", Channels: 2, SampleRate: 176400, BitDepth: 16},
	}
	for _, f := range valid {
		if err := ValidateFormat(f); err != nil {
			t.Errorf("%+v should be valid: %v", f, err)
		}
	}

	invalid := []AudioFormat{
		{Codec: "pcm", Channels: 3, SampleRate: 48000, BitDepth: 16},
		{Codec: "pcm", Channels: 2, SampleRate: 22050, BitDepth: 16},
		{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 20},
		{Codec: "opus", Channels: 2, SampleRate: 44100, BitDepth: 16},
		{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 24},
		{Codec: "flac", Channels: 2, SampleRate: 48000, BitDepth: 32},
		{Codec: "mp3", Channels: 2, SampleRate: 44100, BitDepth: 16},
		{Codec: "", Channels: 2, SampleRate: 48000, BitDepth: 16},
	}
	for _, f := range invalid {
		if err := ValidateFormat(f); err == nil {
			t.Errorf("%+v should be invalid", f)
		}
	}
}

func TestSelectFormatHonorsClientOrder(t *testing.T) {
	client := []AudioFormat{
		{Codec: "flac", Channels: 2, SampleRate: 96000, BitDepth: 24},
		{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
		{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
	}

	// Server cannot do flac; first producible client preference is pcm.
	canProduce := func(f AudioFormat) bool { return f.Codec != "flac" }

	got, ok := SelectFormat(client, canProduce)
	if !ok {
		t.Fatal("expected a format")
	}
	if got.Codec != "pcm" || got.SampleRate != 48000 {
		t.Errorf("got %+v", got)
	}
}

func TestSelectFormatSkipsInvalidEntries(t *testing.T) {
	client := []AudioFormat{
		{Codec: "opus", Channels: 2, SampleRate: 44100, BitDepth: 16}, // illegal opus rate
		{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
	}
	got, ok := SelectFormat(client, func(AudioFormat) bool { return true })
	if !ok {
		t.Fatal("expected a format")
	}
	if got.SampleRate != 48000 {
		t.Errorf("got %+v", got)
	}
}

func TestSelectFormatNoIntersection(t *testing.T) {
	client := []AudioFormat{
		{Codec: "flac", Channels: 2, SampleRate: 96000, BitDepth: 24},
	}
	if _, ok := SelectFormat(client, func(AudioFormat) bool { return false }); ok {
		t.Error("expected no format")
	}
	if _, ok := SelectFormat(nil, func(AudioFormat) bool { return true }); ok {
		t.Error("expected no format for empty list")
	}
}
