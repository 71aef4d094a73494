package root_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/localbeat/localbeat/internal/domain/root"
)

func TestGrant(t *testing.T) {
	t.Run("readable directory", func(t *testing.T) {
		dir := t.TempDir()
		h, err := root.Grant(dir)
		if err != nil {
			t.Fatalf("Grant: %v", err)
		}
		if h.Path() == "" {
			t.Error("granted handle has no path")
		}
	})

	t.Run("missing directory rejected", func(t *testing.T) {
		_, err := root.Grant(filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(err, root.ErrInaccessible) {
			t.Errorf("err = %v, want ErrInaccessible", err)
		}
	})

	t.Run("regular file rejected", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "song.mp3")
		if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := root.Grant(file); !errors.Is(err, root.ErrInaccessible) {
			t.Errorf("err = %v, want ErrInaccessible", err)
		}
	})
}

func TestVerify(t *testing.T) {
	t.Run("empty directory is fine", func(t *testing.T) {
		h := root.Restore(t.TempDir())
		if err := h.Verify(); err != nil {
			t.Errorf("Verify on empty dir: %v", err)
		}
	})

	t.Run("vanished directory reports inaccessible", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "ejected")
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		h := root.Restore(dir)
		if err := h.Verify(); err != nil {
			t.Fatal(err)
		}
		if err := os.Remove(dir); err != nil {
			t.Fatal(err)
		}
		if err := h.Verify(); !errors.Is(err, root.ErrInaccessible) {
			t.Errorf("err = %v, want ErrInaccessible", err)
		}
	})
}

func TestRestoreDoesNotCheckAccess(t *testing.T) {
	// Restoring a handle to a missing folder must succeed; the folder may be
	// an unmounted drive that comes back later.
	h := root.Restore(filepath.Join(t.TempDir(), "unmounted"))
	if h == nil || h.Path() == "" {
		t.Fatal("Restore rejected a currently-missing path")
	}
}

func TestFileAccess(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "Artist")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "track.mp3"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := root.Restore(dir)
	data, err := h.ReadFile([]string{"Artist", "track.mp3"})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("read %q", data)
	}

	f, err := h.Open([]string{"Artist", "track.mp3"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close()

	if _, err := h.ReadFile([]string{"Artist", "missing.mp3"}); err == nil {
		t.Error("reading a missing file succeeded")
	}
}
