package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localbeat/localbeat/internal/domain/library"
	"github.com/localbeat/localbeat/internal/domain/scan"
	"github.com/localbeat/localbeat/internal/infra/store"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	kv, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a := &app{
		kv:          kv,
		lib:         library.NewStore(kv),
		worker:      scan.NewWorker(),
		watchWindow: time.Second,
		ctx:         ctx,
	}
	a.worker.Start(ctx)
	return a
}

func TestGrantFolder(t *testing.T) {
	t.Run("persists the handle and submits a scan", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "one.mp3"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}

		a := newTestApp(t)
		if err := a.GrantFolder(dir); err != nil {
			t.Fatalf("GrantFolder: %v", err)
		}
		if a.FolderPath() == "" {
			t.Error("no folder path after grant")
		}

		var saved string
		found, err := a.kv.GetJSON(directoryHandleKey, &saved)
		if err != nil || !found {
			t.Fatalf("handle not persisted: found=%v err=%v", found, err)
		}
		if saved != a.FolderPath() {
			t.Errorf("persisted %q, granted %q", saved, a.FolderPath())
		}

		select {
		case res := <-a.worker.Results():
			if res.Type != scan.ResultComplete {
				t.Errorf("scan result = %+v, want complete", res)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("grant did not trigger a scan")
		}
	})

	t.Run("rejects a missing folder", func(t *testing.T) {
		a := newTestApp(t)
		if err := a.GrantFolder(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("missing folder granted")
		}
		if a.FolderPath() != "" {
			t.Errorf("folder path set after failed grant: %q", a.FolderPath())
		}
	})
}

func TestRescanWithoutFolder(t *testing.T) {
	a := newTestApp(t)
	if err := a.Rescan(); err == nil {
		t.Error("rescan without a granted folder succeeded")
	}
}
