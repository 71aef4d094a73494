package library

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Persistence keys owned by the store. The playback snapshot lives under its
// own key (see the player package) so resuming playback never rewrites the
// catalog.
const (
	songsKey     = "songs"
	playlistsKey = "playlists"
)

// Errors returned by store operations.
var (
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrSongNotFound     = errors.New("song not found")
)

// Persister is the durable key-value layer the store writes through.
type Persister interface {
	PutJSON(key string, v any) error
	GetJSON(key string, v any) (bool, error)
	Delete(key string) error
}

// historyLimit bounds the in-memory listening history.
const historyLimit = 20

// Store is the authoritative in-memory catalog and playlist collection,
// kept consistent with the persistence layer. All mutations are
// read-modify-persist cycles guarded by a single lock.
type Store struct {
	mu        sync.RWMutex
	kv        Persister
	songs     []Song
	byID      map[string]int
	playlists []Playlist
	history   []string // most-recent-first song IDs, in-memory only

	onChange func()
}

// NewStore creates a store backed by the given persistence layer.
func NewStore(kv Persister) *Store {
	return &Store{
		kv:   kv,
		byID: make(map[string]int),
	}
}

// SetOnChange registers a callback invoked after any persisted mutation.
// Used by the transport to push library updates.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load restores the catalog and playlists from durable storage.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var songs []Song
	if _, err := s.kv.GetJSON(songsKey, &songs); err != nil {
		return err
	}
	var playlists []Playlist
	if _, err := s.kv.GetJSON(playlistsKey, &playlists); err != nil {
		return err
	}

	s.songs = songs
	s.playlists = playlists
	s.reindex()

	log.Info().
		Int("songs", len(s.songs)).
		Int("playlists", len(s.playlists)).
		Msg("Library loaded")
	return nil
}

func (s *Store) reindex() {
	s.byID = make(map[string]int, len(s.songs))
	for i, song := range s.songs {
		s.byID[song.ID] = i
	}
}

// Songs returns a snapshot of the catalog in stored order.
func (s *Store) Songs() []Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Song, len(s.songs))
	copy(out, s.songs)
	return out
}

// SongByID resolves a song ID against the current catalog.
func (s *Store) SongByID(id string) (Song, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Song{}, false
	}
	return s.songs[i], true
}

// SongCount returns the catalog size.
func (s *Store) SongCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.songs)
}

// ReconcileScan applies a scan diff: newSongs are unioned into the catalog
// and removedIDs are dropped, then the catalog is persisted as a single
// durable write. The worker pre-filters newSongs against known IDs, but the
// store dedupes defensively anyway; applying the same diff twice yields the
// same catalog. Returns the number of songs actually added and removed.
func (s *Store) ReconcileScan(newSongs []Song, removedIDs []string) (added, removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedSet := make(map[string]bool, len(removedIDs))
	for _, id := range removedIDs {
		removedSet[id] = true
	}

	next := make([]Song, 0, len(s.songs)+len(newSongs))
	for _, song := range s.songs {
		if removedSet[song.ID] {
			removed++
			continue
		}
		next = append(next, song)
	}

	seen := make(map[string]bool, len(next))
	for _, song := range next {
		seen[song.ID] = true
	}
	for _, song := range newSongs {
		if seen[song.ID] || removedSet[song.ID] {
			continue
		}
		seen[song.ID] = true
		next = append(next, song)
		added++
	}

	if added == 0 && removed == 0 {
		return 0, 0, nil
	}

	prev := s.songs
	s.songs = next
	s.reindex()
	if err := s.kv.PutJSON(songsKey, s.songs); err != nil {
		s.songs = prev
		s.reindex()
		return 0, 0, err
	}

	log.Info().Int("added", added).Int("removed", removed).Msg("Library updated")
	s.notifyLocked()
	return added, removed, nil
}

// CreatePlaylist creates and persists an empty playlist. The name must not
// trim to empty.
func (s *Store) CreatePlaylist(name string) (Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Playlist{}, &ValidationError{Reason: "playlist name must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pl := Playlist{
		ID:        uuid.NewString(),
		Name:      name,
		SongIDs:   []string{},
		CreatedAt: time.Now().UTC(),
	}
	s.playlists = append(s.playlists, pl)
	if err := s.persistPlaylistsLocked(); err != nil {
		s.playlists = s.playlists[:len(s.playlists)-1]
		return Playlist{}, err
	}

	log.Info().Str("id", pl.ID).Str("name", pl.Name).Msg("Playlist created")
	s.notifyLocked()
	return pl, nil
}

// RenamePlaylist changes a playlist's name.
func (s *Store) RenamePlaylist(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Reason: "playlist name must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.playlistIndexLocked(id)
	if i < 0 {
		return ErrPlaylistNotFound
	}
	old := s.playlists[i].Name
	s.playlists[i].Name = name
	if err := s.persistPlaylistsLocked(); err != nil {
		s.playlists[i].Name = old
		return err
	}
	s.notifyLocked()
	return nil
}

// DeletePlaylist removes a playlist.
func (s *Store) DeletePlaylist(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.playlistIndexLocked(id)
	if i < 0 {
		return ErrPlaylistNotFound
	}
	removed := s.playlists[i]
	s.playlists = append(s.playlists[:i], s.playlists[i+1:]...)
	if err := s.persistPlaylistsLocked(); err != nil {
		s.playlists = append(s.playlists[:i], append([]Playlist{removed}, s.playlists[i:]...)...)
		return err
	}
	s.notifyLocked()
	return nil
}

// AddSongToPlaylist appends a song reference. Adding an already-present song
// is a no-op reported distinctly: added is false and err is nil, so callers
// can tell a duplicate from a successful add.
func (s *Store) AddSongToPlaylist(playlistID, songID string) (added bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.playlistIndexLocked(playlistID)
	if i < 0 {
		return false, ErrPlaylistNotFound
	}
	for _, id := range s.playlists[i].SongIDs {
		if id == songID {
			return false, nil
		}
	}
	s.playlists[i].SongIDs = append(s.playlists[i].SongIDs, songID)
	if err := s.persistPlaylistsLocked(); err != nil {
		s.playlists[i].SongIDs = s.playlists[i].SongIDs[:len(s.playlists[i].SongIDs)-1]
		return false, err
	}
	s.notifyLocked()
	return true, nil
}

// RemoveSongFromPlaylist drops a song reference if present.
func (s *Store) RemoveSongFromPlaylist(playlistID, songID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.playlistIndexLocked(playlistID)
	if i < 0 {
		return ErrPlaylistNotFound
	}
	ids := s.playlists[i].SongIDs
	for j, id := range ids {
		if id == songID {
			next := append(append([]string(nil), ids[:j]...), ids[j+1:]...)
			s.playlists[i].SongIDs = next
			if err := s.persistPlaylistsLocked(); err != nil {
				s.playlists[i].SongIDs = ids
				return err
			}
			s.notifyLocked()
			return nil
		}
	}
	return nil
}

// ReorderPlaylistSongs moves the entry at from to position to. Out-of-bounds
// indexes make it a silent no-op.
func (s *Store) ReorderPlaylistSongs(playlistID string, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.playlistIndexLocked(playlistID)
	if i < 0 {
		return ErrPlaylistNotFound
	}
	ids := s.playlists[i].SongIDs
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) || from == to {
		return nil
	}
	// Splice a copy so the prior order survives a failed persist.
	next := append([]string(nil), ids...)
	moved := next[from]
	next = append(next[:from], next[from+1:]...)
	next = append(next[:to], append([]string{moved}, next[to:]...)...)
	s.playlists[i].SongIDs = next
	if err := s.persistPlaylistsLocked(); err != nil {
		s.playlists[i].SongIDs = ids
		return err
	}
	s.notifyLocked()
	return nil
}

// Playlists returns a snapshot of the playlist collection.
func (s *Store) Playlists() []Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Playlist, len(s.playlists))
	for i, pl := range s.playlists {
		out[i] = pl
		out[i].SongIDs = append([]string(nil), pl.SongIDs...)
	}
	return out
}

// GetPlaylistSongs resolves a playlist's song IDs against the current catalog
// in stored order, dropping IDs with no matching Song. Callers needing a
// missing count compute len(SongIDs) - len(resolved).
func (s *Store) GetPlaylistSongs(playlistID string) ([]Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.playlistIndexLocked(playlistID)
	if i < 0 {
		return nil, ErrPlaylistNotFound
	}
	songs := make([]Song, 0, len(s.playlists[i].SongIDs))
	for _, id := range s.playlists[i].SongIDs {
		if j, ok := s.byID[id]; ok {
			songs = append(songs, s.songs[j])
		}
	}
	return songs, nil
}

// RecordPlay prepends a song to the bounded listening history.
func (s *Store) RecordPlay(songID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[songID]; !ok {
		return
	}
	s.history = append([]string{songID}, s.history...)
	if len(s.history) > historyLimit {
		s.history = s.history[:historyLimit]
	}
}

// History returns the listening history, most recent first.
func (s *Store) History() []Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Song, 0, len(s.history))
	for _, id := range s.history {
		if i, ok := s.byID[id]; ok {
			out = append(out, s.songs[i])
		}
	}
	return out
}

// Clear drops the catalog, playlists and persisted state. Used when the user
// revokes the library ("clear library"), never by scan failures.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.songs = nil
	s.playlists = nil
	s.history = nil
	s.reindex()
	if err := s.kv.Delete(songsKey); err != nil {
		return err
	}
	if err := s.kv.Delete(playlistsKey); err != nil {
		return err
	}
	log.Info().Msg("Library cleared")
	s.notifyLocked()
	return nil
}

func (s *Store) playlistIndexLocked(id string) int {
	for i, pl := range s.playlists {
		if pl.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persistPlaylistsLocked() error {
	return s.kv.PutJSON(playlistsKey, s.playlists)
}

func (s *Store) notifyLocked() {
	if s.onChange != nil {
		// Callbacks run outside the lock to keep transports from deadlocking
		// back into the store.
		fn := s.onChange
		go fn()
	}
}

// SortedByTitle returns the catalog sorted case-insensitively by title.
func (s *Store) SortedByTitle() []Song {
	songs := s.Songs()
	sort.Slice(songs, func(i, j int) bool {
		return strings.ToLower(songs[i].Title) < strings.ToLower(songs[j].Title)
	})
	return songs
}
