// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit, 24-bit and 32-bit little-endian PCM to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Sendspin/sendspin-go/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	switch format.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", format.BitDepth)
	}

	return &PCMDecoder{bitDepth: format.BitDepth}, nil
}

// Decode converts little-endian PCM bytes to int32 samples
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	switch d.bitDepth {
	case 24:
		if len(data)%3 != 0 {
			return nil, fmt.Errorf("24-bit pcm payload not a multiple of 3: %d bytes", len(data))
		}
		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = audio.SampleFrom24Bit(b)
		}
		return samples, nil

	case 32:
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("32-bit pcm payload not a multiple of 4: %d bytes", len(data))
		}
		numSamples := len(data) / 4
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			raw := int32(binary.LittleEndian.Uint32(data[i*4:]))
			samples[i] = audio.SampleFrom32Bit(raw)
		}
		return samples, nil

	default: // 16
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("16-bit pcm payload not a multiple of 2: %d bytes", len(data))
		}
		numSamples := len(data) / 2
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
			samples[i] = audio.SampleFromInt16(sample16)
		}
		return samples, nil
	}
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
