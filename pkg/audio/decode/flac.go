// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC frames to int32 samples using the stream codec header
package decode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Sendspin/sendspin-go/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC audio. Each chunk on the wire holds whole FLAC
// frames; the codec header from stream/start ("fLaC" marker plus STREAMINFO)
// is prepended so every chunk parses as a standalone stream.
type FLACDecoder struct {
	format audio.Format
	header []byte
}

// NewFLAC creates a new FLAC decoder. The format must carry the codec header.
func NewFLAC(format audio.Format) (Decoder, error) {
	if format.Codec != "flac" {
		return nil, fmt.Errorf("invalid codec for FLAC decoder: %s", format.Codec)
	}
	if len(format.CodecHeader) == 0 {
		return nil, fmt.Errorf("flac requires a codec header")
	}

	// Validate the header up front so a bad stream/start fails loudly.
	if _, err := flac.New(bytes.NewReader(format.CodecHeader)); err != nil {
		return nil, fmt.Errorf("invalid flac codec header: %w", err)
	}

	return &FLACDecoder{
		format: format,
		header: format.CodecHeader,
	}, nil
}

// Decode converts FLAC frame bytes to int32 samples
func (d *FLACDecoder) Decode(data []byte) ([]int32, error) {
	stream, err := flac.New(io.MultiReader(bytes.NewReader(d.header), bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("flac stream setup failed: %w", err)
	}

	shift := uint(0)
	if bps := int(stream.Info.BitsPerSample); bps < 24 {
		shift = uint(24 - bps)
	}

	var samples []int32
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flac frame parse failed: %w", err)
		}

		channels := len(f.Subframes)
		n := int(f.BlockSize)
		interleaved := make([]int32, n*channels)
		for ch, sub := range f.Subframes {
			for i := 0; i < n; i++ {
				interleaved[i*channels+ch] = sub.Samples[i] << shift
			}
		}
		samples = append(samples, interleaved...)
	}

	if samples == nil {
		return nil, fmt.Errorf("flac chunk contained no frames")
	}
	return samples, nil
}

// Close releases decoder resources
func (d *FLACDecoder) Close() error {
	return nil
}
