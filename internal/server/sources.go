// ABOUTME: File-backed audio sources for the streaming server
// ABOUTME: MP3 and FLAC files plus a multi-track playlist wrapper
package server

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Sendspin/sendspin-go/pkg/audio/decode"
	"github.com/Sendspin/sendspin-go/pkg/sendspin"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

// NewFileSource creates an audio source for a local file. The format is
// chosen by extension; a playlist of several files comes from NewPlaylist.
func NewFileSource(path string) (sendspin.AudioSource, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return NewMP3Source(path)
	case ".flac":
		return NewFLACSource(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", filepath.Ext(path))
	}
}

// MP3Source streams a local MP3 file, looping at EOF.
type MP3Source struct {
	mu         sync.Mutex
	file       *os.File
	decoder    *decode.MP3Decoder
	sampleRate int
	channels   int
	title      string
}

// NewMP3Source opens an MP3 file as an audio source.
func NewMP3Source(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := decode.NewMP3(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	title := trackTitle(path)
	log.Printf("Loaded MP3: %s (%d Hz)", title, decoder.SampleRate())

	return &MP3Source{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		channels:   2, // go-mp3 always decodes to stereo
		title:      title,
	}, nil
}

func (s *MP3Source) Read(samples []int32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.decoder.Read(samples)
	if err == io.EOF {
		// Loop: reopen the decoder at the start of the file.
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return n, fmt.Errorf("failed to rewind: %w", seekErr)
		}
		decoder, decErr := decode.NewMP3(s.file)
		if decErr != nil {
			return n, decErr
		}
		s.decoder = decoder
		return n, nil
	}
	return n, err
}

// Seek repositions playback. go-mp3 exposes the decoded PCM stream as a
// seekable 16-bit stereo byte stream.
func (s *MP3Source) Seek(positionMicros int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const bytesPerFrame = 4 // 2 channels x 2 bytes
	offset := positionMicros * int64(s.sampleRate) / 1_000_000 * bytesPerFrame
	return s.decoder.Seek(offset)
}

func (s *MP3Source) SampleRate() int { return s.sampleRate }
func (s *MP3Source) Channels() int   { return s.channels }
func (s *MP3Source) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *MP3Source) Close() error { return s.file.Close() }

// FLACSource streams a local FLAC file, looping at EOF.
type FLACSource struct {
	mu         sync.Mutex
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	title      string

	// Carryover samples from a frame that did not fit the caller's buffer.
	pending []int32
}

// NewFLACSource opens a FLAC file as an audio source.
func NewFLACSource(path string) (*FLACSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	title := trackTitle(path)
	log.Printf("Loaded FLAC: %s (%d Hz, %d ch, %d bit)", title, info.SampleRate, info.NChannels, info.BitsPerSample)

	return &FLACSource{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
		title:      title,
	}, nil
}

func (s *FLACSource) Read(samples []int32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	read := 0

	// Drain any carryover first.
	if len(s.pending) > 0 {
		n := copy(samples, s.pending)
		s.pending = s.pending[n:]
		read += n
	}

	for read < len(samples) {
		frame, err := s.stream.ParseNext()
		if err == io.EOF {
			if rewindErr := s.rewind(); rewindErr != nil {
				return read, rewindErr
			}
			continue
		}
		if err != nil {
			return read, err
		}

		interleaved := s.interleave(frame.Subframes, int(frame.BlockSize))
		n := copy(samples[read:], interleaved)
		read += n
		if n < len(interleaved) {
			s.pending = interleaved[n:]
		}
	}

	return read, nil
}

func (s *FLACSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to reopen stream: %w", err)
	}
	s.stream = stream
	return nil
}

// interleave converts per-channel subframes to interleaved 24-bit-range
// samples.
func (s *FLACSource) interleave(subframes []*frame.Subframe, blockSize int) []int32 {
	shift := 24 - s.bitDepth
	out := make([]int32, blockSize*s.channels)
	for ch := 0; ch < s.channels && ch < len(subframes); ch++ {
		for i := 0; i < blockSize; i++ {
			sample := subframes[ch].Samples[i]
			if shift > 0 {
				sample <<= uint(shift)
			} else if shift < 0 {
				sample >>= uint(-shift)
			}
			out[i*s.channels+ch] = sample
		}
	}
	return out
}

func (s *FLACSource) SampleRate() int { return s.sampleRate }
func (s *FLACSource) Channels() int   { return s.channels }
func (s *FLACSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *FLACSource) Close() error { return s.file.Close() }

// Playlist serves several audio files as one source. The active track loops
// until Next or Prev switches tracks, wrapping at either end. SampleRate and
// Channels report the active track; tracks are not checked against each other.
type Playlist struct {
	mu      sync.Mutex
	paths   []string
	current int
	active  sendspin.AudioSource
}

// NewPlaylist opens the first track of a multi-file playlist.
func NewPlaylist(paths []string) (*Playlist, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("playlist is empty")
	}

	first, err := NewFileSource(paths[0])
	if err != nil {
		return nil, err
	}

	return &Playlist{paths: paths, active: first}, nil
}

func (p *Playlist) Read(samples []int32) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.Read(samples)
}

// Next advances to the next track, wrapping at the end.
func (p *Playlist) Next() error {
	return p.jump(1)
}

// Prev returns to the previous track, wrapping at the start.
func (p *Playlist) Prev() error {
	return p.jump(-1)
}

func (p *Playlist) jump(delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := (p.current + delta + len(p.paths)) % len(p.paths)
	source, err := NewFileSource(p.paths[next])
	if err != nil {
		return err
	}

	if p.active != nil {
		p.active.Close()
	}
	p.active = source
	p.current = next
	return nil
}

func (p *Playlist) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.SampleRate()
}

func (p *Playlist) Channels() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.Channels()
}

func (p *Playlist) Metadata() (string, string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.Metadata()
}

func (p *Playlist) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.Close()
}

func trackTitle(path string) string {
	filename := filepath.Base(path)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
