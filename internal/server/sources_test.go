// ABOUTME: Tests for file-backed audio sources
// ABOUTME: Verifies extension dispatch and playlist edge cases
package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFileSourceMissingFile(t *testing.T) {
	if _, err := NewFileSource("/nonexistent/track.mp3"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewFileSourceUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.ogg")
	if err := os.WriteFile(path, []byte("not audio"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileSource(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestNewFileSourceRejectsGarbage(t *testing.T) {
	for _, ext := range []string{".mp3", ".flac"} {
		path := filepath.Join(t.TempDir(), "garbage"+ext)
		if err := os.WriteFile(path, []byte("definitely not audio data"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewFileSource(path); err == nil {
			t.Errorf("%s: expected decode error for garbage file", ext)
		}
	}
}

func TestNewPlaylistEmpty(t *testing.T) {
	if _, err := NewPlaylist(nil); err == nil {
		t.Error("expected error for empty playlist")
	}
}

func TestTrackTitle(t *testing.T) {
	if got := trackTitle("/music/Best Song.flac"); got != "Best Song" {
		t.Errorf("got %s", got)
	}
}
