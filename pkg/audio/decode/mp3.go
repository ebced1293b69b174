// ABOUTME: MP3 audio decoder for local file sources
// ABOUTME: Decodes an MP3 byte stream to int32 samples; not a wire codec
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Sendspin/sendspin-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes a contiguous MP3 stream. It exists for file-backed
// audio sources; mp3 is never negotiated as a wire codec.
type MP3Decoder struct {
	decoder *mp3.Decoder
}

// NewMP3 creates a decoder over a complete MP3 stream.
func NewMP3(r io.Reader) (*MP3Decoder, error) {
	decoder, err := mp3.NewDecoder(readerAt(r))
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}
	return &MP3Decoder{decoder: decoder}, nil
}

// SampleRate returns the stream's sample rate.
func (d *MP3Decoder) SampleRate() int {
	return d.decoder.SampleRate()
}

// Read decodes the next block of samples into 24-bit range int32s.
// go-mp3 always produces 16-bit stereo.
func (d *MP3Decoder) Read(samples []int32) (int, error) {
	buf := make([]byte, len(samples)*2)
	n, err := io.ReadFull(d.decoder, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("mp3 decode error: %w", err)
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}
	if numSamples == 0 {
		return 0, io.EOF
	}
	return numSamples, nil
}

// Seek repositions the decoded PCM stream to the given byte offset.
func (d *MP3Decoder) Seek(offset int64) error {
	_, err := d.decoder.Seek(offset, io.SeekStart)
	return err
}

// Close releases decoder resources
func (d *MP3Decoder) Close() error {
	return nil
}

// readerAt adapts any reader to the io.ReadSeeker go-mp3 wants; streams that
// cannot seek are buffered.
func readerAt(r io.Reader) io.ReadSeeker {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs
	}
	data, err := io.ReadAll(r)
	if err != nil {
		data = nil
	}
	return bytes.NewReader(data)
}
