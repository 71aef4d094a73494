package player

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// snapshotKey is the persistence key for the playback snapshot.
const snapshotKey = "playbackState"

// Persister is the durable key/value store snapshots are written to.
type Persister interface {
	PutJSON(key string, v any) error
	GetJSON(key string, v any) (bool, error)
}

// Snapshot is the persisted slice of playback state. It carries enough to
// rebuild the session after a restart; playback itself resumes only on an
// explicit resume.
type Snapshot struct {
	CurrentSongID   string     `json:"currentSongId"`
	Queue           []string   `json:"queue"`
	OriginalQueue   []string   `json:"originalQueue"`
	IsShuffled      bool       `json:"isShuffled"`
	RepeatMode      RepeatMode `json:"repeatMode"`
	ProgressSeconds float64    `json:"progressSeconds"`
	Volume          int        `json:"volume"`
}

// Snapshot captures the current persistable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		CurrentSongID:   c.queue.Current,
		Queue:           append([]string(nil), c.queue.Queue...),
		OriginalQueue:   append([]string(nil), c.queue.OriginalQueue...),
		IsShuffled:      c.queue.Shuffled,
		RepeatMode:      c.queue.Repeat,
		ProgressSeconds: c.progress,
		Volume:          c.volume,
	}
}

// SaveSnapshot persists the current state under the playback key.
func (c *Controller) SaveSnapshot(kv Persister) error {
	return kv.PutJSON(snapshotKey, c.Snapshot())
}

// RestoreSnapshot loads the persisted state, if any, into the controller.
// The controller comes back paused with no source loaded; Resume reopens
// the current song lazily. Entries for songs no longer in the catalog are
// dropped so a pruned library cannot resurrect ghosts in the queue.
func (c *Controller) RestoreSnapshot(kv Persister) error {
	var snap Snapshot
	found, err := kv.GetJSON(snapshotKey, &snap)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.Queue = c.knownOnlyLocked(snap.Queue)
	c.queue.OriginalQueue = c.knownOnlyLocked(snap.OriginalQueue)
	c.queue.Shuffled = snap.IsShuffled
	c.queue.Repeat = snap.RepeatMode
	if c.queue.Repeat == "" {
		c.queue.Repeat = RepeatOff
	}
	c.queue.Current = ""
	c.progress = 0
	if _, ok := c.resolver.SongByID(snap.CurrentSongID); ok {
		c.queue.Current = snap.CurrentSongID
		c.progress = snap.ProgressSeconds
	}
	c.volume = snap.Volume
	if c.volume <= 0 || c.volume > 100 {
		c.volume = 100
	}
	c.status = StatusPause
	if c.queue.Current == "" {
		c.status = StatusStop
	}
	c.loaded = false

	log.Info().
		Str("song", c.queue.Current).
		Int("queue", len(c.queue.Queue)).
		Msg("Playback state restored")
	return nil
}

func (c *Controller) knownOnlyLocked(ids []string) []string {
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := c.resolver.SongByID(id); ok {
			kept = append(kept, id)
		}
	}
	return kept
}

// Flusher persists the playback snapshot on a fixed interval and once more
// on shutdown, bounding how much session state a crash can lose.
type Flusher struct {
	controller *Controller
	kv         Persister
	interval   time.Duration
}

// NewFlusher creates a flusher; interval defaults to 5s when nonpositive.
func NewFlusher(c *Controller, kv Persister, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Flusher{controller: c, kv: kv, interval: interval}
}

// Run flushes until ctx is cancelled, then performs a final flush.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", f.interval).Msg("Snapshot flusher started")
	for {
		select {
		case <-ctx.Done():
			f.Flush()
			log.Info().Msg("Snapshot flusher stopped")
			return
		case <-ticker.C:
			f.Flush()
		}
	}
}

// Flush writes one snapshot, logging rather than propagating failures.
func (f *Flusher) Flush() {
	if err := f.controller.SaveSnapshot(f.kv); err != nil {
		log.Error().Err(err).Msg("Persisting playback state failed")
	}
}
