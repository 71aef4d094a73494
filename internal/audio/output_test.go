package audio_test

import (
	"testing"

	"github.com/localbeat/localbeat/internal/audio"
)

// closeTracker records whether Close was called.
type closeTracker struct {
	closed bool
}

func (c *closeTracker) Read(p []byte) (int, error) { return 0, nil }
func (c *closeTracker) Close() error               { c.closed = true; return nil }

func TestLoadReleasesPreviousSource(t *testing.T) {
	out := audio.NewLocalOutput()

	first := &closeTracker{}
	if err := out.Load(audio.Track{SongID: "a", Name: "a.mp3", Source: first}); err != nil {
		t.Fatal(err)
	}
	if first.closed {
		t.Fatal("source closed while current")
	}

	second := &closeTracker{}
	if err := out.Load(audio.Track{SongID: "b", Name: "b.flac", Source: second}); err != nil {
		t.Fatal(err)
	}
	if !first.closed {
		t.Error("previous source not released on load")
	}
	if second.closed {
		t.Error("new source closed prematurely")
	}

	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	if !second.closed {
		t.Error("source not released on close")
	}
}

func TestTransportStates(t *testing.T) {
	out := audio.NewLocalOutput()

	if err := out.Play(); err == nil {
		t.Error("play with nothing loaded succeeded")
	}
	if err := out.Seek(10); err == nil {
		t.Error("seek with nothing loaded succeeded")
	}

	src := &closeTracker{}
	if err := out.Load(audio.Track{SongID: "a", Name: "a.mp3", Source: src}); err != nil {
		t.Fatal(err)
	}
	if err := out.Play(); err != nil {
		t.Fatal(err)
	}

	st := out.Status()
	if !st.Loaded || !st.Locked || st.TrackType != "mp3" {
		t.Errorf("status = %+v", st)
	}

	if err := out.Pause(); err != nil {
		t.Fatal(err)
	}
	if out.Status().Locked {
		t.Error("still locked after pause")
	}

	if err := out.Stop(); err != nil {
		t.Fatal(err)
	}
	if !src.closed {
		t.Error("stop did not release the source")
	}
	if out.Status().Loaded {
		t.Error("still loaded after stop")
	}
}
