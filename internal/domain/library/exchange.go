package library

import (
	"encoding/json"
	"io"

	"github.com/rs/zerolog/log"
)

// exchangeDoc is the export/import document shape. Only playlists travel;
// the catalog is always rebuilt from the files on disk.
type exchangeDoc struct {
	Playlists []Playlist `json:"playlists"`
}

// ExportPlaylists serializes the playlist collection as a JSON document
// suitable for download.
func (s *Store) ExportPlaylists(w io.Writer) error {
	doc := exchangeDoc{Playlists: s.Playlists()}
	if doc.Playlists == nil {
		doc.Playlists = []Playlist{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ImportPlaylists parses a user-supplied export document and replaces the
// playlist collection wholesale. A malformed document yields a
// ValidationError and no state is touched.
func (s *Store) ImportPlaylists(r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, &ValidationError{Reason: "could not read import file: " + err.Error()}
	}

	// Decode into a raw map first so a missing or non-array "playlists"
	// field is rejected rather than silently defaulting to empty.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, &ValidationError{Reason: "import file is not valid JSON"}
	}
	rawPlaylists, ok := raw["playlists"]
	if !ok {
		return 0, &ValidationError{Reason: `import file has no "playlists" field`}
	}
	var playlists []Playlist
	if err := json.Unmarshal(rawPlaylists, &playlists); err != nil {
		return 0, &ValidationError{Reason: `"playlists" must be an array of playlists`}
	}
	for _, pl := range playlists {
		if pl.ID == "" {
			return 0, &ValidationError{Reason: "imported playlist is missing an id"}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.playlists
	if playlists == nil {
		playlists = []Playlist{}
	}
	s.playlists = playlists
	if err := s.persistPlaylistsLocked(); err != nil {
		s.playlists = prev
		return 0, err
	}

	log.Info().Int("playlists", len(playlists)).Msg("Playlists imported")
	s.notifyLocked()
	return len(playlists), nil
}
