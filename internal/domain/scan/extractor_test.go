package scan_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/localbeat/localbeat/internal/domain/library"
	"github.com/localbeat/localbeat/internal/domain/root"
	"github.com/localbeat/localbeat/internal/domain/scan"
)

// id3Frame builds one ID3v2.3 text frame (4-byte big-endian size, latin-1).
func id3Frame(id, value string) []byte {
	buf := []byte(id)
	size := uint32(len(value) + 1)
	buf = append(buf, byte(size>>24), byte(size>>16), byte(size>>8), byte(size))
	buf = append(buf, 0, 0) // flags
	buf = append(buf, 0)    // ISO-8859-1 encoding
	buf = append(buf, value...)
	return buf
}

// id3v2 builds a minimal tagged file: an ID3v2.3 header, the given text
// frames and a dummy payload standing in for audio data.
func id3v2(title, artist, album string) []byte {
	var frames []byte
	frames = append(frames, id3Frame("TIT2", title)...)
	frames = append(frames, id3Frame("TPE1", artist)...)
	frames = append(frames, id3Frame("TALB", album)...)

	n := len(frames)
	out := []byte{'I', 'D', '3', 3, 0, 0,
		byte(n >> 21 & 0x7f), byte(n >> 14 & 0x7f), byte(n >> 7 & 0x7f), byte(n & 0x7f)}
	out = append(out, frames...)
	return append(out, make([]byte, 64)...)
}

// wavFile builds a canonical 16-bit mono PCM WAV with the given number of
// data bytes at 8kHz, so duration = dataLen / 16000 seconds.
func wavFile(dataLen int) []byte {
	const (
		sampleRate    = 8000
		bitsPerSample = 16
		channels      = 1
	)
	byteRate := sampleRate * channels * bitsPerSample / 8

	buf := []byte("RIFF")
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataLen))
	buf = append(buf, "WAVEfmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, channels)
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(byteRate))
	buf = binary.LittleEndian.AppendUint16(buf, channels*bitsPerSample/8)
	buf = binary.LittleEndian.AppendUint16(buf, bitsPerSample)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataLen))
	return append(buf, make([]byte, dataLen)...)
}

func writeFile(t *testing.T, dir string, name string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractTaggedFile(t *testing.T) {
	dir := t.TempDir()
	data := id3v2("Riverside", "The Band", "First Light")
	writeFile(t, dir, "track.mp3", data)

	h := root.Restore(dir)
	var ex scan.Extractor
	song, err := ex.Extract(h, scan.Entry{Path: []string{"track.mp3"}, Size: int64(len(data))})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if song.Title != "Riverside" || song.Artist != "The Band" || song.Album != "First Light" {
		t.Errorf("tags = %q/%q/%q", song.Title, song.Artist, song.Album)
	}
	if want := library.Fingerprint([]string{"track.mp3"}, int64(len(data))); song.ID != want {
		t.Errorf("ID = %q, want %q", song.ID, want)
	}
	if song.CoverArt != "" {
		t.Errorf("cover art fabricated: %q", song.CoverArt)
	}
}

func TestExtractUntaggedFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	data := wavFile(16000) // 1 second, no tags
	writeFile(t, dir, "field recording.wav", data)

	h := root.Restore(dir)
	var ex scan.Extractor
	song, err := ex.Extract(h, scan.Entry{Path: []string{"field recording.wav"}, Size: int64(len(data))})
	if err != nil {
		t.Fatalf("untagged file skipped: %v", err)
	}

	if song.Title != "field recording" {
		t.Errorf("title = %q, want filename stem", song.Title)
	}
	if song.Artist != library.UnknownArtist || song.Album != library.UnknownAlbum {
		t.Errorf("fallbacks = %q/%q", song.Artist, song.Album)
	}
	if song.DurationSeconds < 0.99 || song.DurationSeconds > 1.01 {
		t.Errorf("duration = %v, want ~1s", song.DurationSeconds)
	}
}

func TestExtractUsesWalkTimeFingerprint(t *testing.T) {
	dir := t.TempDir()
	data := id3v2("Growing", "A", "X")
	writeFile(t, dir, "growing.mp3", data)

	h := root.Restore(dir)
	var ex scan.Extractor
	// The entry carries a stat size from before the file grew; the ID must
	// come from that size, not the bytes read now, or the next pass would
	// report the file removed and re-add it.
	staleSize := int64(len(data)) - 7
	song, err := ex.Extract(h, scan.Entry{Path: []string{"growing.mp3"}, Size: staleSize})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if want := library.Fingerprint([]string{"growing.mp3"}, staleSize); song.ID != want {
		t.Errorf("ID = %q, want walk-time fingerprint %q", song.ID, want)
	}
}

func TestExtractUnreadableFile(t *testing.T) {
	h := root.Restore(t.TempDir())
	var ex scan.Extractor
	if _, err := ex.Extract(h, scan.Entry{Path: []string{"vanished.mp3"}, Size: 1}); err == nil {
		t.Error("expected error for unreadable file")
	}
}
