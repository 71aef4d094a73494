package scan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localbeat/localbeat/internal/domain/root"
	"github.com/localbeat/localbeat/internal/domain/scan"
)

func awaitResult(t *testing.T, w *scan.Worker) scan.Result {
	t.Helper()
	select {
	case res := <-w.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no scan result within timeout")
		return scan.Result{}
	}
}

func TestWorkerScanPass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.mp3", id3v2("One", "A", "X"))
	writeFile(t, dir, filepath.Join("sub", "two.wav"), wavFile(160))
	writeFile(t, dir, "readme.txt", []byte("ignored"))

	h := root.Restore(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := scan.NewWorker()
	w.Start(ctx)

	if err := w.Scan(h, nil); err != nil {
		t.Fatal(err)
	}
	res := awaitResult(t, w)
	if res.Type != scan.ResultComplete {
		t.Fatalf("result = %+v, want complete", res)
	}
	if len(res.NewSongs) != 2 {
		t.Fatalf("found %d songs, want 2", len(res.NewSongs))
	}
	if len(res.RemovedSongIDs) != 0 {
		t.Errorf("first pass reported removals: %v", res.RemovedSongIDs)
	}

	known := []string{res.NewSongs[0].ID, res.NewSongs[1].ID}

	t.Run("unchanged rescan yields an empty diff", func(t *testing.T) {
		if err := w.Scan(h, known); err != nil {
			t.Fatal(err)
		}
		res := awaitResult(t, w)
		if res.Type != scan.ResultComplete {
			t.Fatalf("result = %+v", res)
		}
		if len(res.NewSongs) != 0 || len(res.RemovedSongIDs) != 0 {
			t.Errorf("diff not empty: new=%v removed=%v", res.NewSongs, res.RemovedSongIDs)
		}
	})

	t.Run("deleted file reported removed", func(t *testing.T) {
		if err := os.Remove(filepath.Join(dir, "one.mp3")); err != nil {
			t.Fatal(err)
		}
		if err := w.Scan(h, known); err != nil {
			t.Fatal(err)
		}
		res := awaitResult(t, w)
		if res.Type != scan.ResultComplete {
			t.Fatalf("result = %+v", res)
		}
		if len(res.RemovedSongIDs) != 1 {
			t.Fatalf("removed = %v, want one ID", res.RemovedSongIDs)
		}
	})
}

func TestWorkerRejectsConcurrentScans(t *testing.T) {
	// Not started: the first request parks in the buffer, so the second
	// must be rejected rather than queued behind it.
	w := scan.NewWorker()
	h := root.Restore(t.TempDir())

	if err := w.Scan(h, nil); err != nil {
		t.Fatal(err)
	}
	if err := w.Scan(h, nil); !errors.Is(err, scan.ErrScanInFlight) {
		t.Errorf("err = %v, want ErrScanInFlight", err)
	}
}

func TestWorkerInaccessibleRoot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := scan.NewWorker()
	w.Start(ctx)

	if err := w.Scan(root.Restore(filepath.Join(t.TempDir(), "gone")), nil); err != nil {
		t.Fatal(err)
	}
	res := awaitResult(t, w)
	if res.Type != scan.ResultError {
		t.Fatalf("result = %+v, want error", res)
	}
	if res.Message == "" {
		t.Error("error result carries no reason")
	}

	if err := w.Scan(nil, nil); err != nil {
		t.Fatal(err)
	}
	res = awaitResult(t, w)
	if res.Type != scan.ResultError {
		t.Fatalf("nil root result = %+v, want error", res)
	}
}

func TestWorkerStatusCallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.mp3", id3v2("One", "A", "X"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusCh := make(chan bool, 4)
	w := scan.NewWorker()
	w.OnStatus = func(scanning bool) { statusCh <- scanning }
	w.Start(ctx)

	if err := w.Scan(root.Restore(dir), nil); err != nil {
		t.Fatal(err)
	}
	awaitResult(t, w)

	var seen []bool
	for len(seen) < 2 {
		select {
		case v := <-statusCh:
			seen = append(seen, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("status callbacks = %v, want start and end", seen)
		}
	}
	if !seen[0] || seen[1] {
		t.Errorf("status sequence = %v, want [true false]", seen)
	}
}
