// Package socketio provides the Socket.io server for client communication.
package socketio

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/localbeat/localbeat/internal/domain/library"
	"github.com/localbeat/localbeat/internal/domain/player"
)

// FolderManager is the application surface for folder access and scanning.
// The main wiring implements it; the server only translates events.
type FolderManager interface {
	GrantFolder(path string) error
	FolderPath() string
	Rescan() error
	ScanInProgress() bool
}

// Server handles Socket.io connections and events.
type Server struct {
	io         *socket.Server
	controller *player.Controller
	lib        *library.Store
	folders    FolderManager

	mu      sync.RWMutex
	clients map[string]*socket.Socket
}

// NewServer creates a new Socket.io server.
func NewServer(controller *player.Controller, lib *library.Store, folders FolderManager) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:         server,
		controller: controller,
		lib:        lib,
		folders:    folders,
		clients:    make(map[string]*socket.Socket),
	}

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		log.Info().Str("id", clientID).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
			s.pushQueue(client)
			s.pushLibrary(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		// Player control events
		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			s.pushState(client)
		})

		client.On("play", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("play")

			songID := ""
			var context []string
			if m, ok := payload(args); ok {
				songID, _ = m["songId"].(string)
				context = stringSlice(m["context"])
			}

			var err error
			if songID == "" {
				err = s.controller.Resume()
			} else {
				err = s.controller.PlaySong(songID, context)
			}
			if err != nil {
				log.Error().Err(err).Msg("Play failed")
				s.pushError(client, err)
				return
			}
			s.BroadcastState()
			s.BroadcastQueue()
		})

		client.On("pause", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("pause")
			if err := s.controller.Pause(); err != nil {
				log.Error().Err(err).Msg("Pause failed")
			}
			s.BroadcastState()
		})

		client.On("stop", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("stop")
			if err := s.controller.Stop(); err != nil {
				log.Error().Err(err).Msg("Stop failed")
			}
			s.BroadcastState()
		})

		client.On("next", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("next")
			if err := s.controller.PlayNext(); err != nil {
				log.Error().Err(err).Msg("Next failed")
				s.pushError(client, err)
			}
			s.BroadcastState()
		})

		client.On("prev", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("prev")
			if err := s.controller.PlayPrevious(); err != nil {
				log.Error().Err(err).Msg("Previous failed")
				s.pushError(client, err)
			}
			s.BroadcastState()
		})

		client.On("seek", func(args ...any) {
			if len(args) > 0 {
				if pos, ok := args[0].(float64); ok {
					log.Debug().Str("id", clientID).Float64("pos", pos).Msg("seek")
					if err := s.controller.Seek(pos); err != nil {
						log.Error().Err(err).Msg("Seek failed")
					}
					s.BroadcastState()
				}
			}
		})

		client.On("progress", func(args ...any) {
			if len(args) > 0 {
				if pos, ok := args[0].(float64); ok {
					s.controller.UpdateProgress(pos)
				}
			}
		})

		client.On("volume", func(args ...any) {
			if len(args) > 0 {
				if vol, ok := args[0].(float64); ok {
					log.Debug().Str("id", clientID).Float64("vol", vol).Msg("volume")
					if err := s.controller.SetVolume(int(vol)); err != nil {
						log.Error().Err(err).Msg("SetVolume failed")
					}
					s.BroadcastState()
				}
			}
		})

		client.On("toggleShuffle", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("toggleShuffle")
			s.controller.ToggleShuffle()
			s.BroadcastState()
			s.BroadcastQueue()
		})

		client.On("toggleRepeat", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("toggleRepeat")
			s.controller.ToggleRepeat()
			s.BroadcastState()
		})

		// Queue events
		client.On("getQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getQueue")
			s.pushQueue(client)
		})

		client.On("addToQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("addToQueue")
			if m, ok := payload(args); ok {
				if songID, ok := m["songId"].(string); ok {
					if err := s.controller.AddToQueue(songID); err != nil {
						log.Error().Err(err).Msg("AddToQueue failed")
						s.pushError(client, err)
						return
					}
					s.BroadcastQueue()
				}
			}
		})

		client.On("removeFromQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("removeFromQueue")
			if m, ok := payload(args); ok {
				if songID, ok := m["songId"].(string); ok {
					if err := s.controller.RemoveFromQueue(songID); err != nil {
						log.Error().Err(err).Msg("RemoveFromQueue failed")
						s.pushError(client, err)
					}
					s.BroadcastState()
					s.BroadcastQueue()
				}
			}
		})

		client.On("clearQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("clearQueue")
			s.controller.ClearQueue()
			s.BroadcastState()
			s.BroadcastQueue()
		})

		client.On("reorderQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("reorderQueue")
			if m, ok := payload(args); ok {
				from, fok := m["from"].(float64)
				to, tok := m["to"].(float64)
				if fok && tok {
					s.controller.ReorderQueue(int(from), int(to))
					s.BroadcastQueue()
				}
			}
		})

		// Library events
		client.On("getLibrary", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getLibrary")
			s.pushLibrary(client)
		})

		client.On("getAlbums", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getAlbums")
			client.Emit("pushAlbums", s.lib.Albums())
		})

		client.On("getArtists", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getArtists")
			client.Emit("pushArtists", s.lib.Artists())
		})

		client.On("getHistory", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getHistory")
			client.Emit("pushHistory", s.lib.History())
		})

		// Folder and scan events
		client.On("grantFolder", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("grantFolder")
			if m, ok := payload(args); ok {
				if path, ok := m["path"].(string); ok {
					if err := s.folders.GrantFolder(path); err != nil {
						log.Error().Err(err).Str("path", path).Msg("GrantFolder failed")
						s.pushError(client, err)
						return
					}
					client.Emit("pushFolder", map[string]any{"path": s.folders.FolderPath()})
				}
			}
		})

		client.On("rescan", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("rescan")
			if err := s.folders.Rescan(); err != nil {
				log.Warn().Err(err).Msg("Rescan rejected")
				s.pushError(client, err)
				return
			}
			s.BroadcastScanStatus(true)
		})

		client.On("getScanStatus", func(args ...any) {
			client.Emit("pushScanStatus", map[string]any{"scanning": s.folders.ScanInProgress()})
		})

		client.On("clearLibrary", func(args ...any) {
			log.Info().Str("id", clientID).Msg("clearLibrary")
			if err := s.controller.Stop(); err != nil {
				log.Warn().Err(err).Msg("Stopping playback for clear failed")
			}
			if err := s.lib.Clear(); err != nil {
				log.Error().Err(err).Msg("ClearLibrary failed")
				s.pushError(client, err)
				return
			}
			s.BroadcastState()
			s.BroadcastQueue()
			s.BroadcastLibrary()
			s.BroadcastPlaylists()
		})

		// Playlist events
		client.On("getPlaylists", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getPlaylists")
			client.Emit("pushPlaylists", s.lib.Playlists())
		})

		client.On("createPlaylist", func(args ...any) {
			if m, ok := payload(args); ok {
				name, _ := m["name"].(string)
				pl, err := s.lib.CreatePlaylist(name)
				if err != nil {
					log.Warn().Err(err).Msg("CreatePlaylist failed")
					s.pushError(client, err)
					return
				}
				log.Info().Str("playlist", pl.ID).Str("name", pl.Name).Msg("Playlist created")
				s.BroadcastPlaylists()
			}
		})

		client.On("renamePlaylist", func(args ...any) {
			if m, ok := payload(args); ok {
				id, _ := m["playlistId"].(string)
				name, _ := m["name"].(string)
				if err := s.lib.RenamePlaylist(id, name); err != nil {
					log.Warn().Err(err).Msg("RenamePlaylist failed")
					s.pushError(client, err)
					return
				}
				s.BroadcastPlaylists()
			}
		})

		client.On("deletePlaylist", func(args ...any) {
			if m, ok := payload(args); ok {
				id, _ := m["playlistId"].(string)
				if err := s.lib.DeletePlaylist(id); err != nil {
					log.Warn().Err(err).Msg("DeletePlaylist failed")
					s.pushError(client, err)
					return
				}
				s.BroadcastPlaylists()
			}
		})

		client.On("addToPlaylist", func(args ...any) {
			if m, ok := payload(args); ok {
				pid, _ := m["playlistId"].(string)
				sid, _ := m["songId"].(string)
				added, err := s.lib.AddSongToPlaylist(pid, sid)
				if err != nil {
					log.Warn().Err(err).Msg("AddSongToPlaylist failed")
					s.pushError(client, err)
					return
				}
				if added {
					s.BroadcastPlaylists()
				}
			}
		})

		client.On("removeFromPlaylist", func(args ...any) {
			if m, ok := payload(args); ok {
				pid, _ := m["playlistId"].(string)
				sid, _ := m["songId"].(string)
				if err := s.lib.RemoveSongFromPlaylist(pid, sid); err != nil {
					log.Warn().Err(err).Msg("RemoveSongFromPlaylist failed")
					s.pushError(client, err)
					return
				}
				s.BroadcastPlaylists()
			}
		})

		client.On("reorderPlaylist", func(args ...any) {
			if m, ok := payload(args); ok {
				pid, _ := m["playlistId"].(string)
				from, fok := m["from"].(float64)
				to, tok := m["to"].(float64)
				if fok && tok {
					if err := s.lib.ReorderPlaylistSongs(pid, int(from), int(to)); err != nil {
						log.Warn().Err(err).Msg("ReorderPlaylistSongs failed")
						s.pushError(client, err)
						return
					}
					s.BroadcastPlaylists()
				}
			}
		})

		client.On("getPlaylistSongs", func(args ...any) {
			if m, ok := payload(args); ok {
				pid, _ := m["playlistId"].(string)
				songs, err := s.lib.GetPlaylistSongs(pid)
				if err != nil {
					s.pushError(client, err)
					return
				}
				client.Emit("pushPlaylistSongs", map[string]any{"playlistId": pid, "songs": songs})
			}
		})
	})
}

// payload extracts the first event argument as an object.
func payload(args []any) (map[string]interface{}, bool) {
	if len(args) == 0 {
		return nil, false
	}
	m, ok := args[0].(map[string]interface{})
	return m, ok
}

// stringSlice coerces a decoded JSON array into string IDs. A nil result
// means "no context given", which the controller treats differently from an
// empty one.
func stringSlice(v any) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// pushState sends current playback state to a client.
func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", s.controller.State())
}

// pushQueue sends the current queue, resolved to song records, to a client.
func (s *Server) pushQueue(client *socket.Socket) {
	client.Emit("pushQueue", s.resolveQueue())
}

// pushLibrary sends the full catalog to a client.
func (s *Server) pushLibrary(client *socket.Socket) {
	client.Emit("pushLibrary", s.lib.Songs())
}

func (s *Server) pushError(client *socket.Socket, err error) {
	client.Emit("pushError", map[string]any{"message": err.Error()})
}

// resolveQueue maps queue IDs to song records, dropping unknowns.
func (s *Server) resolveQueue() []library.Song {
	ids := s.controller.Queue()
	songs := make([]library.Song, 0, len(ids))
	for _, id := range ids {
		if song, ok := s.lib.SongByID(id); ok {
			songs = append(songs, song)
		}
	}
	return songs
}

// BroadcastState sends playback state to all connected clients.
func (s *Server) BroadcastState() {
	s.io.Emit("pushState", s.controller.State())
}

// BroadcastQueue sends the queue to all connected clients.
func (s *Server) BroadcastQueue() {
	s.io.Emit("pushQueue", s.resolveQueue())
}

// BroadcastLibrary sends the catalog to all connected clients. Called after
// a reconcile changes the library.
func (s *Server) BroadcastLibrary() {
	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()
	log.Debug().Int("songs", s.lib.SongCount()).Int("clients", clientCount).Msg("Broadcast library")
	s.io.Emit("pushLibrary", s.lib.Songs())
}

// BroadcastPlaylists sends all playlists to all connected clients.
func (s *Server) BroadcastPlaylists() {
	s.io.Emit("pushPlaylists", s.lib.Playlists())
}

// BroadcastScanStatus reports scan progress to all connected clients.
func (s *Server) BroadcastScanStatus(scanning bool) {
	s.io.Emit("pushScanStatus", map[string]any{"scanning": scanning})
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.io.Close(nil)
	return nil
}
