package library

import (
	"sort"
	"strings"
)

// Album groups catalog songs sharing an album tag.
type Album struct {
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	CoverArt string `json:"coverArt,omitempty"`
	Songs    []Song `json:"songs"`
}

// Artist groups a catalog artist's albums.
type Artist struct {
	Name     string  `json:"name"`
	CoverArt string  `json:"coverArt,omitempty"`
	Albums   []Album `json:"albums"`
}

// Albums derives the album view from the current catalog. The first song
// with embedded cover art supplies the album cover.
func (s *Store) Albums() []Album {
	return groupAlbums(s.Songs())
}

// Artists derives the artist view from the current catalog.
func (s *Store) Artists() []Artist {
	songs := s.Songs()

	byArtist := make(map[string]map[string]*Album)
	var artistOrder []string
	for _, song := range songs {
		albums, ok := byArtist[song.Artist]
		if !ok {
			albums = make(map[string]*Album)
			byArtist[song.Artist] = albums
			artistOrder = append(artistOrder, song.Artist)
		}
		al, ok := albums[song.Album]
		if !ok {
			al = &Album{Name: song.Album, Artist: song.Artist}
			albums[song.Album] = al
		}
		if al.CoverArt == "" && song.CoverArt != "" {
			al.CoverArt = song.CoverArt
		}
		al.Songs = append(al.Songs, song)
	}

	artists := make([]Artist, 0, len(byArtist))
	for _, name := range artistOrder {
		var albums []Album
		for _, al := range byArtist[name] {
			albums = append(albums, *al)
		}
		sort.Slice(albums, func(i, j int) bool {
			return strings.ToLower(albums[i].Name) < strings.ToLower(albums[j].Name)
		})
		cover := ""
		for _, al := range albums {
			if al.CoverArt != "" {
				cover = al.CoverArt
				break
			}
		}
		artists = append(artists, Artist{Name: name, CoverArt: cover, Albums: albums})
	}
	sort.Slice(artists, func(i, j int) bool {
		return strings.ToLower(artists[i].Name) < strings.ToLower(artists[j].Name)
	})
	return artists
}

func groupAlbums(songs []Song) []Album {
	byKey := make(map[string]*Album)
	var order []string
	for _, song := range songs {
		key := song.Artist + "\x00" + song.Album
		al, ok := byKey[key]
		if !ok {
			al = &Album{Name: song.Album, Artist: song.Artist}
			byKey[key] = al
			order = append(order, key)
		}
		if al.CoverArt == "" && song.CoverArt != "" {
			al.CoverArt = song.CoverArt
		}
		al.Songs = append(al.Songs, song)
	}

	albums := make([]Album, 0, len(order))
	for _, key := range order {
		albums = append(albums, *byKey[key])
	}
	sort.Slice(albums, func(i, j int) bool {
		return strings.ToLower(albums[i].Name) < strings.ToLower(albums[j].Name)
	})
	return albums
}
