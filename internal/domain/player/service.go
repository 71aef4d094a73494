package player

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/localbeat/localbeat/internal/audio"
	"github.com/localbeat/localbeat/internal/domain/library"
	"github.com/localbeat/localbeat/internal/domain/root"
)

// ErrSourceUnavailable reports that a song's file could not be opened at
// play time. It is non-fatal: the queue position is held so the listener
// can retry or skip.
var ErrSourceUnavailable = errors.New("song source unavailable")

// ErrUnknownSong reports a song ID that is not in the catalog.
var ErrUnknownSong = errors.New("song not in catalog")

// Seeking back past this point on a previous request restarts the current
// song instead of moving to the prior queue entry.
const previousRestartThreshold = 3.0

// Resolver looks songs up in the library catalog.
type Resolver interface {
	SongByID(id string) (library.Song, bool)
	Songs() []library.Song
}

// PlaybackState is the full controller state pushed to clients.
type PlaybackState struct {
	CurrentSongID   string     `json:"currentSongId"`
	Queue           []string   `json:"queue"`
	OriginalQueue   []string   `json:"originalQueue"`
	IsShuffled      bool       `json:"isShuffled"`
	RepeatMode      RepeatMode `json:"repeatMode"`
	ProgressSeconds float64    `json:"progressSeconds"`
	Volume          int        `json:"volume"`
	Status          string     `json:"status"`
}

// Controller owns playback: it resolves songs through the library, drives
// the audio output and runs the queue state machine. All methods are safe
// for concurrent use.
type Controller struct {
	resolver Resolver
	output   audio.Output
	handle   func() *root.Handle

	mu       sync.Mutex
	queue    QueueState
	status   string
	progress float64
	volume   int
	loaded   bool

	// onPlay fires after a song starts from the beginning, off the lock.
	// The library hooks it to record play history.
	onPlay func(songID string)
}

// NewController creates a stopped controller at full volume. handle returns
// the currently granted library root, nil when none is granted.
func NewController(resolver Resolver, output audio.Output, handle func() *root.Handle) *Controller {
	return &Controller{
		resolver: resolver,
		output:   output,
		handle:   handle,
		queue:    NewQueueState(),
		status:   StatusStop,
		volume:   100,
	}
}

// SetOnPlay registers the started-playing callback.
func (c *Controller) SetOnPlay(fn func(songID string)) {
	c.mu.Lock()
	c.onPlay = fn
	c.mu.Unlock()
}

// PlaySong starts playback of a song. queueContext is the list the song was
// chosen from (an album, a playlist, search results) and becomes the new
// queue; when nil, the queue is built from the full catalog starting at the
// song's position. The source is opened before any queue state changes, so
// a missing file leaves the previous queue intact.
func (c *Controller) PlaySong(songID string, queueContext []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	song, ok := c.resolver.SongByID(songID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSong, songID)
	}

	ctx := queueContext
	if ctx == nil {
		ctx = c.catalogContextLocked(songID)
	}
	if indexOf(ctx, songID) < 0 {
		ctx = append([]string{songID}, ctx...)
	}

	if err := c.loadLocked(song); err != nil {
		return err
	}

	c.queue.SetQueue(songID, ctx)
	c.startLocked(songID)
	return nil
}

// PlayNext advances to the next queue entry. With repeat-one the current
// song restarts; at the end of the queue with repeat off, playback stops on
// the last song (paused at the start) rather than clearing the queue.
func (c *Controller) PlayNext() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Current == "" {
		return nil
	}
	if c.queue.Repeat == RepeatOne {
		return c.restartCurrentLocked()
	}

	next, ok := c.queue.PeekNext()
	if !ok {
		c.progress = 0
		c.status = StatusPause
		if err := c.output.Pause(); err != nil {
			log.Warn().Err(err).Msg("Pausing at end of queue failed")
		}
		log.Debug().Str("song", c.queue.Current).Msg("End of queue reached")
		return nil
	}
	return c.switchToLocked(next)
}

// PlayPrevious moves to the prior queue entry, or restarts the current song
// when more than a few seconds have played. Early in the first queue entry
// there is nothing to go back to and the call is a no-op.
func (c *Controller) PlayPrevious() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Current == "" {
		return nil
	}
	if c.progress > previousRestartThreshold {
		return c.restartCurrentLocked()
	}

	prev, ok := c.queue.PeekPrevious()
	if !ok {
		return nil
	}
	return c.switchToLocked(prev)
}

// Pause suspends playback, keeping position and source.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPlay {
		return nil
	}
	c.status = StatusPause
	return c.output.Pause()
}

// Resume continues paused playback. After a restart the source is loaded
// lazily here, resolving the persisted current song.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Current == "" {
		return nil
	}
	if !c.loaded {
		song, ok := c.resolver.SongByID(c.queue.Current)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSong, c.queue.Current)
		}
		if err := c.loadLocked(song); err != nil {
			return err
		}
		if err := c.output.Seek(c.progress); err != nil {
			log.Warn().Err(err).Msg("Restoring position failed")
		}
	}
	c.status = StatusPlay
	return c.output.Play()
}

// Stop halts playback and releases the source. The queue is kept.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusStop
	c.progress = 0
	c.loaded = false
	return c.output.Stop()
}

// Seek moves the playback position within the current song.
func (c *Controller) Seek(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if !c.loaded {
		c.progress = seconds
		return nil
	}
	if err := c.output.Seek(seconds); err != nil {
		return err
	}
	c.progress = seconds
	return nil
}

// UpdateProgress records the playback position reported by the output
// without issuing a seek. It feeds the persisted snapshot.
func (c *Controller) UpdateProgress(seconds float64) {
	c.mu.Lock()
	if seconds >= 0 {
		c.progress = seconds
	}
	c.mu.Unlock()
}

// SetVolume sets the output volume (0-100, clamped).
func (c *Controller) SetVolume(volume int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}
	c.volume = volume
	return c.output.SetVolume(volume)
}

// AddToQueue appends a catalog song to the queue.
func (c *Controller) AddToQueue(songID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.resolver.SongByID(songID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSong, songID)
	}
	c.queue.Append(songID)
	return nil
}

// RemoveFromQueue drops a song from the queue. Removing the current song
// moves playback to the entry taking its place, or stops when the queue is
// emptied.
func (c *Controller) RemoveFromQueue(songID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.queue.Remove(songID) {
		return nil
	}
	if c.queue.Current == "" {
		c.status = StatusStop
		c.progress = 0
		c.loaded = false
		return c.output.Stop()
	}
	return c.switchToLocked(c.queue.Current)
}

// ClearQueue empties the queue, keeping only the current song.
func (c *Controller) ClearQueue() {
	c.mu.Lock()
	c.queue.Clear()
	c.mu.Unlock()
}

// ReorderQueue moves a queue entry to a new position.
func (c *Controller) ReorderQueue(from, to int) {
	c.mu.Lock()
	c.queue.Reorder(from, to)
	c.mu.Unlock()
}

// ToggleShuffle flips shuffle mode; see QueueState.ToggleShuffle.
func (c *Controller) ToggleShuffle() {
	c.mu.Lock()
	c.queue.ToggleShuffle()
	c.mu.Unlock()
}

// ToggleRepeat cycles the repeat mode.
func (c *Controller) ToggleRepeat() {
	c.mu.Lock()
	c.queue.ToggleRepeat()
	c.mu.Unlock()
}

// State returns a snapshot of the full playback state.
func (c *Controller) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PlaybackState{
		CurrentSongID:   c.queue.Current,
		Queue:           append([]string(nil), c.queue.Queue...),
		OriginalQueue:   append([]string(nil), c.queue.OriginalQueue...),
		IsShuffled:      c.queue.Shuffled,
		RepeatMode:      c.queue.Repeat,
		ProgressSeconds: c.progress,
		Volume:          c.volume,
		Status:          c.status,
	}
}

// Queue returns the active playback order.
func (c *Controller) Queue() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queue.Queue...)
}

// catalogContextLocked builds a queue context from the catalog slice
// starting at the given song, so playing from a flat list queues everything
// after it and nothing before. Unknown position degrades to a single-song
// queue.
func (c *Controller) catalogContextLocked(songID string) []string {
	songs := c.resolver.Songs()
	start := -1
	for i, s := range songs {
		if s.ID == songID {
			start = i
			break
		}
	}
	if start < 0 {
		return []string{songID}
	}
	ids := make([]string, 0, len(songs)-start)
	for _, s := range songs[start:] {
		ids = append(ids, s.ID)
	}
	return ids
}

// switchToLocked opens the candidate song's source and, only on success,
// commits it as the current queue entry. A missing file holds position.
func (c *Controller) switchToLocked(songID string) error {
	song, ok := c.resolver.SongByID(songID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSong, songID)
	}
	if err := c.loadLocked(song); err != nil {
		return err
	}
	c.queue.Current = songID
	c.startLocked(songID)
	return nil
}

func (c *Controller) restartCurrentLocked() error {
	if !c.loaded {
		return c.switchToLocked(c.queue.Current)
	}
	if err := c.output.Seek(0); err != nil {
		return err
	}
	c.startLocked(c.queue.Current)
	return nil
}

// loadLocked resolves the song's file through the granted root and hands it
// to the output. Controller state is untouched on failure.
func (c *Controller) loadLocked(song library.Song) error {
	h := c.handle()
	if h == nil {
		return fmt.Errorf("%w: no library folder granted", ErrSourceUnavailable)
	}
	f, err := h.Open(song.Path)
	if err != nil {
		log.Warn().Err(err).Str("song", song.ID).Msg("Song source unreadable")
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, song.Title)
	}
	if err := c.output.Load(audio.Track{SongID: song.ID, Name: song.Path[len(song.Path)-1], Source: f}); err != nil {
		return err
	}
	c.loaded = true
	return nil
}

// startLocked marks playback started from the beginning and fires onPlay.
func (c *Controller) startLocked(songID string) {
	c.progress = 0
	c.status = StatusPlay
	if err := c.output.Play(); err != nil {
		log.Warn().Err(err).Str("song", songID).Msg("Starting playback failed")
	}
	if c.onPlay != nil {
		go c.onPlay(songID)
	}
	log.Info().Str("song", songID).Msg("Playing")
}
