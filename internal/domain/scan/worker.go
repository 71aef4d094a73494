package scan

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/localbeat/localbeat/internal/domain/library"
	"github.com/localbeat/localbeat/internal/domain/root"
)

// ErrScanInFlight is returned when a scan is requested while one is already
// running. Requests are rejected, not queued; callers retry after the
// current pass finishes.
var ErrScanInFlight = errors.New("a scan is already in flight")

// RequestType discriminates worker request variants.
type RequestType int

const (
	// RequestScan asks for one full scan pass.
	RequestScan RequestType = iota
)

// Request is a scan request. The worker holds no state between passes;
// everything it needs travels in the request.
type Request struct {
	Type         RequestType
	Root         *root.Handle
	KnownSongIDs []string
}

// ResultType discriminates worker result variants.
type ResultType int

const (
	// ResultComplete carries the diff of a finished pass.
	ResultComplete ResultType = iota
	// ResultError reports a catalog-wide failure (root unreadable).
	// Per-file failures are absorbed during the pass and never produce this.
	ResultError
)

// Result is the single message emitted per scan pass.
type Result struct {
	Type           ResultType
	NewSongs       []library.Song
	RemovedSongIDs []string
	Message        string
}

// Worker runs scan passes on a background goroutine so callers never block
// on directory I/O or tag parsing. Exactly one scan is in flight at a time.
type Worker struct {
	extractor Extractor

	mu       sync.Mutex
	running  bool
	scanning bool
	requests chan Request
	results  chan Result

	// OnStatus, if set, is invoked when a pass starts and ends. Used to
	// surface an in-progress signal.
	OnStatus func(scanning bool)
}

// NewWorker creates a scanner worker.
func NewWorker() *Worker {
	return &Worker{
		requests: make(chan Request, 1),
		results:  make(chan Result, 1),
	}
}

// Start launches the worker loop. It exits when ctx is cancelled; a pass in
// flight runs to completion (the worker accepts no mid-scan cancellation).
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go func() {
		log.Info().Msg("Scanner worker started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Scanner worker stopped")
				w.mu.Lock()
				w.running = false
				w.mu.Unlock()
				return
			case req := <-w.requests:
				switch req.Type {
				case RequestScan:
					w.setScanning(true)
					res := w.runScan(req)
					w.setScanning(false)
					w.results <- res
				default:
					w.results <- Result{Type: ResultError, Message: "unknown scan request type"}
				}
			}
		}
	}()
}

// Results returns the channel carrying one Result per accepted request.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Scan submits a scan request. It returns ErrScanInFlight when a pass is
// already running or pending.
func (w *Worker) Scan(h *root.Handle, knownSongIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scanning || len(w.requests) > 0 {
		return ErrScanInFlight
	}
	w.requests <- Request{Type: RequestScan, Root: h, KnownSongIDs: knownSongIDs}
	return nil
}

// InProgress reports whether a pass is currently running.
func (w *Worker) InProgress() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scanning
}

func (w *Worker) setScanning(v bool) {
	w.mu.Lock()
	w.scanning = v
	fn := w.OnStatus
	w.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

// runScan performs one full pass: walk, extract, diff against known IDs.
func (w *Worker) runScan(req Request) Result {
	if req.Root == nil {
		return Result{Type: ResultError, Message: "no library root granted"}
	}
	if err := req.Root.Verify(); err != nil {
		return Result{Type: ResultError, Message: err.Error()}
	}

	known := make(map[string]bool, len(req.KnownSongIDs))
	for _, id := range req.KnownSongIDs {
		known[id] = true
	}

	var (
		newSongs []library.Song
		observed = make(map[string]bool)
		skipped  int
	)

	err := Walk(req.Root, func(e Entry) error {
		id := library.Fingerprint(e.Path, e.Size)
		// Mark before extracting: a known file whose tags fail to parse this
		// pass stays in the catalog rather than being reported removed.
		observed[id] = true
		if known[id] {
			return nil
		}
		song, err := w.extractor.Extract(req.Root, e)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("Skipping file")
			skipped++
			return nil
		}
		newSongs = append(newSongs, song)
		return nil
	})
	if err != nil {
		return Result{Type: ResultError, Message: err.Error()}
	}

	var removed []string
	for _, id := range req.KnownSongIDs {
		if !observed[id] {
			removed = append(removed, id)
		}
	}

	log.Info().
		Int("new", len(newSongs)).
		Int("removed", len(removed)).
		Int("skipped", skipped).
		Msg("Scan pass complete")

	return Result{Type: ResultComplete, NewSongs: newSongs, RemovedSongIDs: removed}
}
