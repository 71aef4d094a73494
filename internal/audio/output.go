// Package audio provides the playback output the controller drives and
// track format detection for the current source.
package audio

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Track is a loaded playback source. Source is owned by the output once
// loaded and released when the next track is assigned.
type Track struct {
	SongID string
	Name   string
	Source io.ReadCloser
}

// Output is the audio sink the playback controller drives. Transport calls
// are synchronous with respect to controller state; the underlying effect is
// asynchronous and may fail, in which case the error is reported to the
// caller rather than crashing playback.
type Output interface {
	Load(track Track) error
	Play() error
	Pause() error
	Stop() error
	Seek(seconds float64) error
	SetVolume(volume int) error
	Close() error
}

// Status describes the output for state pushes.
type Status struct {
	Loaded    bool   `json:"loaded"`
	Locked    bool   `json:"locked"` // device held for playback
	TrackType string `json:"trackType,omitempty"`
}

// LocalOutput is an Output over files resolved through the library root.
// It manages exactly one source at a time: the previous source is closed
// before the next is assigned, so playback never accumulates open handles.
type LocalOutput struct {
	mu        sync.Mutex
	current   *Track
	trackType string
	playing   bool
	volume    int
	position  float64
}

// NewLocalOutput creates an output with full volume and nothing loaded.
func NewLocalOutput() *LocalOutput {
	return &LocalOutput{volume: 100}
}

// Load releases the previous source and assigns the new one.
func (o *LocalOutput) Load(track Track) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.releaseLocked()
	o.current = &track
	o.trackType = trackTypeFromName(track.Name)
	o.position = 0
	o.playing = false

	log.Debug().Str("song", track.SongID).Str("trackType", o.trackType).Msg("Source loaded")
	return nil
}

// Play starts or resumes the loaded source.
func (o *LocalOutput) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return fmt.Errorf("no source loaded")
	}
	o.playing = true
	return nil
}

// Pause suspends playback, keeping the source loaded.
func (o *LocalOutput) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playing = false
	return nil
}

// Stop halts playback and releases the source.
func (o *LocalOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releaseLocked()
	o.playing = false
	o.position = 0
	return nil
}

// Seek moves the playback position.
func (o *LocalOutput) Seek(seconds float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return fmt.Errorf("no source loaded")
	}
	if seconds < 0 {
		seconds = 0
	}
	o.position = seconds
	return nil
}

// SetVolume sets the output volume (0-100, clamped).
func (o *LocalOutput) SetVolume(volume int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}
	o.volume = volume
	return nil
}

// Close releases the current source.
func (o *LocalOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releaseLocked()
	return nil
}

// Status returns the current output status.
func (o *LocalOutput) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		Loaded:    o.current != nil,
		Locked:    o.playing,
		TrackType: o.trackType,
	}
}

func (o *LocalOutput) releaseLocked() {
	if o.current != nil && o.current.Source != nil {
		if err := o.current.Source.Close(); err != nil {
			log.Warn().Err(err).Str("song", o.current.SongID).Msg("Releasing source failed")
		}
	}
	o.current = nil
	o.trackType = ""
}

// trackTypeFromName derives the track type from the file extension.
func trackTypeFromName(name string) string {
	if idx := strings.LastIndex(name, "."); idx != -1 {
		return strings.ToLower(name[idx+1:])
	}
	return ""
}
