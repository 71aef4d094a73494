package library_test

import (
	"testing"

	"github.com/localbeat/localbeat/internal/domain/library"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		size     int64
		want     string
	}{
		{
			name:     "root-level file",
			segments: []string{"song.mp3"},
			size:     1024,
			want:     "song.mp3-1024",
		},
		{
			name:     "nested file",
			segments: []string{"Artist", "Album", "01 - Track.flac"},
			size:     99,
			want:     "Artist/Album/01 - Track.flac-99",
		},
		{
			name:     "zero size",
			segments: []string{"empty.wav"},
			size:     0,
			want:     "empty.wav-0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := library.Fingerprint(tt.segments, tt.size)
			if got != tt.want {
				t.Errorf("Fingerprint(%v, %d) = %q, want %q", tt.segments, tt.size, got, tt.want)
			}
		})
	}

	t.Run("stable across calls", func(t *testing.T) {
		a := library.Fingerprint([]string{"a", "b.mp3"}, 5)
		b := library.Fingerprint([]string{"a", "b.mp3"}, 5)
		if a != b {
			t.Errorf("same input produced different IDs: %q vs %q", a, b)
		}
	})

	t.Run("size change changes ID", func(t *testing.T) {
		a := library.Fingerprint([]string{"a.mp3"}, 5)
		b := library.Fingerprint([]string{"a.mp3"}, 6)
		if a == b {
			t.Error("different sizes produced the same ID")
		}
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{1, "0:01"},
		{59, "0:59"},
		{60, "1:00"},
		{61, "1:01"},
		{185.2, "3:05"},
		{185.6, "3:06"},
		{3600, "60:00"},
		{-5, "0:00"},
	}

	for _, tt := range tests {
		if got := library.FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestIsValidation(t *testing.T) {
	if !library.IsValidation(&library.ValidationError{Reason: "x"}) {
		t.Error("ValidationError not recognized")
	}
	if library.IsValidation(library.ErrSongNotFound) {
		t.Error("sentinel error misclassified as validation")
	}
}
