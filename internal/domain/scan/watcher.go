package scan

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/localbeat/localbeat/internal/domain/root"
)

// Watcher observes the granted library tree and requests a rescan when files
// change. Bursts of filesystem events (a copy of a whole album, say) are
// collapsed into a single rescan after a quiet window. The watcher is a
// convenience on top of explicit rescans; failing to start it is non-fatal.
type Watcher struct {
	handle  *root.Handle
	rescan  func()
	window  time.Duration
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewWatcher creates a watcher that invokes rescan after the debounce window
// elapses without further events.
func NewWatcher(h *root.Handle, window time.Duration, rescan func()) *Watcher {
	return &Watcher{handle: h, rescan: rescan, window: window}
}

// Start registers the watch on the whole granted tree and begins observing.
// It returns an error only when the platform watcher itself cannot be
// created; unwatchable subdirectories are skipped with a warning.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	dirs := 0
	filepath.WalkDir(w.handle.Abs(nil), func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			log.Warn().Err(err).Str("dir", path).Msg("Cannot watch directory")
			return nil
		}
		dirs++
		return nil
	})

	go func() {
		log.Info().Int("dirs", dirs).Dur("window", w.window).Msg("Library watcher started")
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Library watcher stopped")
				w.Stop()
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				// New subdirectories need their own watch before their
				// contents generate events.
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := fw.Add(event.Name); err != nil {
							log.Warn().Err(err).Str("dir", event.Name).Msg("Cannot watch new directory")
						}
					}
				}
				w.bump()
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Library watcher error")
			}
		}
	}()
	return nil
}

// bump resets the debounce timer; the rescan fires once the tree goes quiet.
func (w *Watcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, func() {
		log.Debug().Msg("Library changed, requesting rescan")
		w.rescan()
	})
}

// Stop prevents any further rescan callbacks.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
