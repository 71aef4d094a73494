// Package library owns the song catalog and playlist collection.
package library

import (
	"fmt"
	"path"
	"strconv"
	"time"
)

// Sentinel values used when a file carries no usable tag.
const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

// Song is an immutable catalog record produced by a scan pass. A changed
// file yields a new Song with a new ID; the old record is dropped by the
// reconcile diff.
type Song struct {
	ID              string   `json:"id"`
	Path            []string `json:"path"` // segments relative to the library root
	Title           string   `json:"title"`
	Artist          string   `json:"artist"`
	Album           string   `json:"album"`
	DurationSeconds float64  `json:"durationSeconds"`
	CoverArt        string   `json:"coverArt,omitempty"` // data URI, empty when absent
}

// RelPath returns the song's path relative to the library root.
func (s Song) RelPath() string {
	return path.Join(s.Path...)
}

// Fingerprint derives a Song ID from a file's relative path and byte size.
// It is stable across rescans of an unchanged file and changes whenever the
// file size changes. No content hashing is involved.
func Fingerprint(segments []string, size int64) string {
	return path.Join(segments...) + "-" + strconv.FormatInt(size, 10)
}

// FormatDuration renders a duration in seconds as m:ss for display.
// The display form is always derived, never stored.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Playlist is a named, ordered set of song ID references. It never owns Song
// data; resolving IDs always goes through the current catalog.
type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SongIDs   []string  `json:"songIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidationError reports a rejected user input (empty playlist name,
// malformed import document). It is returned synchronously and implies no
// partial state mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}
