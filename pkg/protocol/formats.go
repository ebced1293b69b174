// ABOUTME: Audio format descriptor validation and negotiation
// ABOUTME: Enforces per-codec legality rules and client-preference selection
package protocol

// Codec names valid on the wire.
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
	CodecFLAC = "flac"
)

var validSampleRates = map[int]bool{
	44100: true, 48000: true, 88200: true,
	96000: true, 176400: true, 192000: true,
}

// ValidateFormat checks a format descriptor against the per-codec rules:
//
//	pcm:  any listed sample rate, bit depth 16/24/32
//	opus: 48000 Hz, 16-bit, mono or stereo
//	flac: bit depth 16/24
func ValidateFormat(f AudioFormat) error {
	if f.Channels != 1 && f.Channels != 2 {
		return ProtocolErrorf("invalid channel count %d", f.Channels)
	}
	if !validSampleRates[f.SampleRate] {
		return ProtocolErrorf("invalid sample rate %d", f.SampleRate)
	}

	switch f.Codec {
	case CodecPCM:
		if f.BitDepth != 16 && f.BitDepth != 24 && f.BitDepth != 32 {
			return ProtocolErrorf("pcm bit depth %d not supported", f.BitDepth)
		}
	case CodecOpus:
		if f.SampleRate != 48000 {
			return ProtocolErrorf("opus requires 48000 Hz, got %d", f.SampleRate)
		}
		if f.BitDepth != 16 {
			return ProtocolErrorf("opus requires 16-bit, got %d", f.BitDepth)
		}
	case CodecFLAC:
		if f.BitDepth != 16 && f.BitDepth != 24 {
			return ProtocolErrorf("flac bit depth %d not supported", f.BitDepth)
		}
	default:
		return ProtocolErrorf("unknown codec %q", f.Codec)
	}
	return nil
}

// SelectFormat picks the stream format for a player: the first entry of the
// client's preference-ordered list that the server can produce. Invalid
// descriptors in the client list are skipped, not fatal. Returns false if no
// intersection exists (the server then sends server/goodbye reason
// "no_format").
func SelectFormat(clientFormats []AudioFormat, canProduce func(AudioFormat) bool) (AudioFormat, bool) {
	for _, f := range clientFormats {
		if ValidateFormat(f) != nil {
			continue
		}
		if canProduce(f) {
			return f, true
		}
	}
	return AudioFormat{}, false
}
