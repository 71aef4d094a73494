package scan

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog/log"
	"github.com/tcolgate/mp3"

	"github.com/localbeat/localbeat/internal/domain/library"
	"github.com/localbeat/localbeat/internal/domain/root"
)

// Extractor turns a discovered file into a normalized Song record. Each file
// is read into memory once; tags, the first embedded cover image and the
// container-level duration all come from that single read.
type Extractor struct{}

// Extract parses one file. Failures are per-file: the caller logs a warning
// and skips the entry, never aborting the pass.
func (Extractor) Extract(h *root.Handle, e Entry) (library.Song, error) {
	data, err := h.ReadFile(e.Path)
	if err != nil {
		return library.Song{}, fmt.Errorf("read %s: %w", e.Name(), err)
	}
	if int64(len(data)) != e.Size {
		// The file changed between the walk's stat and this read. The ID
		// stays on the walk-time size so the pass diff sees one file, not a
		// phantom removal plus re-add.
		log.Warn().
			Str("file", e.Name()).
			Int64("walkSize", e.Size).
			Int("readSize", len(data)).
			Msg("File changed during scan")
	}

	song := library.Song{
		ID:     library.Fingerprint(e.Path, e.Size),
		Path:   e.Path,
		Title:  titleFromName(e.Name()),
		Artist: library.UnknownArtist,
		Album:  library.UnknownAlbum,
	}

	m, err := tag.ReadFrom(bytes.NewReader(data))
	switch {
	case err == nil:
		if t := strings.TrimSpace(m.Title()); t != "" {
			song.Title = t
		}
		if a := strings.TrimSpace(m.Artist()); a != "" {
			song.Artist = a
		}
		if a := strings.TrimSpace(m.Album()); a != "" {
			song.Album = a
		}
		if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
			song.CoverArt = coverDataURI(pic.MIMEType, pic.Data)
		}
	case errors.Is(err, tag.ErrNoTagsFound):
		// Untagged file: keep the filename fallbacks.
	default:
		return library.Song{}, fmt.Errorf("parse tags in %s: %w", e.Name(), err)
	}

	song.DurationSeconds = duration(e.Name(), data)
	return song, nil
}

// duration reads the playback length from container-level format metadata,
// defaulting to 0 when the format carries none we can decode.
func duration(name string, data []byte) float64 {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return mp3Duration(data)
	case ".wav":
		return wavDuration(data)
	default:
		return 0
	}
}

// mp3Duration sums MPEG frame durations across the file.
func mp3Duration(data []byte) float64 {
	d := mp3.NewDecoder(bytes.NewReader(data))
	var (
		frame   mp3.Frame
		skipped int
		total   float64
	)
	for {
		// Trailing garbage after the last frame is common; keep whatever
		// was decoded up to the first error.
		if err := d.Decode(&frame, &skipped); err != nil {
			return total
		}
		total += frame.Duration().Seconds()
	}
}

func wavDuration(data []byte) float64 {
	d := wav.NewDecoder(bytes.NewReader(data))
	dur, err := d.Duration()
	if err != nil {
		return 0
	}
	return dur.Seconds()
}

// coverDataURI encodes an embedded picture as a data URI. Absent cover art
// stays absent; no placeholder URL is ever baked into a record.
func coverDataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func titleFromName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
