// Package main is the entry point for the LocalBeat music player backend.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/localbeat/localbeat/internal/audio"
	"github.com/localbeat/localbeat/internal/domain/library"
	"github.com/localbeat/localbeat/internal/domain/player"
	"github.com/localbeat/localbeat/internal/domain/root"
	"github.com/localbeat/localbeat/internal/domain/scan"
	"github.com/localbeat/localbeat/internal/infra/store"
	"github.com/localbeat/localbeat/internal/transport/socketio"
	"github.com/localbeat/localbeat/internal/version"
)

// directoryHandleKey persists the path of the granted library folder.
const directoryHandleKey = "directoryHandle"

// app ties the library folder, scanner and watcher together. It implements
// socketio.FolderManager.
type app struct {
	kv     *store.DB
	lib    *library.Store
	worker *scan.Worker

	watchWindow time.Duration
	ctx         context.Context

	mu      sync.Mutex
	handle  *root.Handle
	watcher *scan.Watcher
}

// Handle returns the currently granted library root, nil when none.
func (a *app) Handle() *root.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

// GrantFolder grants a new library folder, persists the handle and kicks off
// a scan. The previous folder's watcher is replaced.
func (a *app) GrantFolder(path string) error {
	h, err := root.Grant(path)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.handle = h
	a.mu.Unlock()

	if err := a.kv.PutJSON(directoryHandleKey, h.Path()); err != nil {
		log.Error().Err(err).Msg("Persisting folder handle failed")
	}
	log.Info().Str("path", h.Path()).Msg("Library folder granted")

	a.startWatcher()
	if err := a.Rescan(); err != nil && !errors.Is(err, scan.ErrScanInFlight) {
		return err
	}
	return nil
}

// FolderPath returns the granted folder's path, empty when none.
func (a *app) FolderPath() string {
	if h := a.Handle(); h != nil {
		return h.Path()
	}
	return ""
}

// Rescan submits a scan of the granted folder against the current catalog.
func (a *app) Rescan() error {
	h := a.Handle()
	if h == nil {
		return errors.New("no library folder granted")
	}
	songs := a.lib.Songs()
	known := make([]string, len(songs))
	for i, s := range songs {
		known[i] = s.ID
	}
	return a.worker.Scan(h, known)
}

// ScanInProgress reports whether a scan pass is running.
func (a *app) ScanInProgress() bool {
	return a.worker.InProgress()
}

// startWatcher replaces the filesystem watcher with one for the current
// folder. Watcher failures are non-fatal; explicit rescans still work.
func (a *app) startWatcher() {
	a.mu.Lock()
	if a.watcher != nil {
		a.watcher.Stop()
	}
	w := scan.NewWatcher(a.handle, a.watchWindow, func() {
		if err := a.Rescan(); err != nil && !errors.Is(err, scan.ErrScanInFlight) {
			log.Warn().Err(err).Msg("Auto rescan failed")
		}
	})
	a.watcher = w
	a.mu.Unlock()

	if err := w.Start(a.ctx); err != nil {
		log.Warn().Err(err).Msg("Cannot watch library folder")
	}
}

func main() {
	// Command line flags
	port := flag.String("port", "3001", "HTTP server port")
	dataPath := flag.String("data", "data/localbeat.db", "Path to the state database")
	rootPath := flag.String("root", "", "Music folder to grant on startup (optional)")
	flushInterval := flag.Duration("flush-interval", 5*time.Second, "Playback state flush interval")
	watchWindow := flag.Duration("watch-window", 2*time.Second, "Quiet window before a changed folder is rescanned")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Local-First Music Player Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", *port).
		Str("data", *dataPath).
		Dur("flush_interval", *flushInterval).
		Msg("Configuration")

	// Open the state store
	kv, err := store.Open(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer kv.Close()

	// Load the library catalog
	lib := library.NewStore(kv)
	if err := lib.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load library")
	}
	log.Info().Int("songs", lib.SongCount()).Msg("Library loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &app{
		kv:          kv,
		lib:         lib,
		worker:      scan.NewWorker(),
		watchWindow: *watchWindow,
		ctx:         ctx,
	}

	// Restore the persisted folder handle. A folder missing at startup is
	// reported but never wipes the catalog; it may be an unmounted drive.
	var savedPath string
	if found, err := kv.GetJSON(directoryHandleKey, &savedPath); err != nil {
		log.Error().Err(err).Msg("Reading folder handle failed")
	} else if found && savedPath != "" {
		h := root.Restore(savedPath)
		if err := h.Verify(); err != nil {
			log.Warn().Err(err).Str("path", savedPath).Msg("Library folder inaccessible, catalog kept")
		}
		a.mu.Lock()
		a.handle = h
		a.mu.Unlock()
		log.Info().Str("path", savedPath).Msg("Library folder restored")
	}

	// Create the playback controller
	output := audio.NewLocalOutput()
	defer output.Close()
	controller := player.NewController(lib, output, a.Handle)
	controller.SetOnPlay(lib.RecordPlay)
	if err := controller.RestoreSnapshot(kv); err != nil {
		log.Warn().Err(err).Msg("Restoring playback state failed")
	}

	// Create Socket.io server
	socketServer, err := socketio.NewServer(controller, lib, a)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	// Library changes fan out to clients through the debouncer so a scan
	// pass produces one broadcast, not one per reconcile.
	debouncer := socketio.NewBroadcastDebouncer(300*time.Millisecond,
		socketServer.BroadcastState,
		socketServer.BroadcastQueue,
		socketServer.BroadcastLibrary,
	)
	defer debouncer.Stop()
	lib.SetOnChange(func() { debouncer.Trigger(socketio.TopicLibrary) })
	a.worker.OnStatus = socketServer.BroadcastScanStatus

	// Start the scanner worker and consume its results
	a.worker.Start(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case res := <-a.worker.Results():
				switch res.Type {
				case scan.ResultComplete:
					added, removed, err := lib.ReconcileScan(res.NewSongs, res.RemovedSongIDs)
					if err != nil {
						log.Error().Err(err).Msg("Reconciling scan failed")
						continue
					}
					log.Info().Int("added", added).Int("removed", removed).Msg("Library reconciled")
				case scan.ResultError:
					log.Error().Str("reason", res.Message).Msg("Scan failed")
				}
			}
		}
	}()

	// Grant the folder named on the command line, or watch and scan what was
	// restored from the previous run.
	if *rootPath != "" {
		if err := a.GrantFolder(*rootPath); err != nil {
			log.Fatal().Err(err).Str("path", *rootPath).Msg("Cannot grant library folder")
		}
	} else if a.Handle() != nil {
		a.startWatcher()
		if err := a.Rescan(); err != nil {
			log.Warn().Err(err).Msg("Startup scan not submitted")
		}
	}

	// Persist playback state periodically
	flusher := player.NewFlusher(controller, kv, *flushInterval)
	go flusher.Run(ctx)

	// Setup HTTP server
	mux := http.NewServeMux()

	// Socket.io endpoint
	mux.Handle("/socket.io/", socketServer)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Version endpoint
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	// Cover art endpoint: serves a song's embedded cover decoded from the
	// catalog record, so clients can use plain <img> URLs.
	mux.HandleFunc("/coverart", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id parameter required", http.StatusBadRequest)
			return
		}
		song, ok := lib.SongByID(id)
		if !ok || song.CoverArt == "" {
			http.Error(w, "cover art not found", http.StatusNotFound)
			return
		}
		contentType, data, err := decodeDataURI(song.CoverArt)
		if err != nil {
			log.Debug().Err(err).Str("song", id).Msg("Bad cover art record")
			http.Error(w, "cover art not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=86400") // Cache for 1 day
		w.Write(data)
	})

	// Playlist exchange endpoints
	mux.HandleFunc("/api/v1/playlists/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="playlists.json"`)
		if err := lib.ExportPlaylists(w); err != nil {
			log.Error().Err(err).Msg("Exporting playlists failed")
		}
	})
	mux.HandleFunc("/api/v1/playlists/import", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		count, err := lib.ImportPlaylists(r.Body)
		if err != nil {
			status := http.StatusInternalServerError
			if library.IsValidation(err) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		socketServer.BroadcastPlaylists()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"imported": count})
	})

	// Start HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", ":"+*port).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	// One last write so nothing played in the final seconds is lost.
	flusher.Flush()
	log.Info().Msg("Server stopped")
}

// decodeDataURI splits a data URI into its content type and payload. The
// content type falls back to sniffing image magic bytes when the URI does
// not carry one.
func decodeDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, errors.New("not a data URI")
	}
	sep := strings.Index(uri, ";base64,")
	if sep < 0 {
		return "", nil, errors.New("not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(uri[sep+len(";base64,"):])
	if err != nil {
		return "", nil, err
	}

	contentType := uri[len("data:"):sep]
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniffImageType(data)
	}
	return contentType, data, nil
}

// sniffImageType detects common image formats from magic bytes.
func sniffImageType(data []byte) string {
	contentType := "image/jpeg" // default
	if len(data) >= 8 {
		if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
			contentType = "image/png"
		} else if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 {
			contentType = "image/gif"
		} else if data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 {
			contentType = "image/webp"
		}
	}
	return contentType
}
