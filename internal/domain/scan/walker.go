// Package scan implements the background library scanner: directory
// traversal, per-file metadata extraction and the single-flight worker that
// diffs a pass against the known catalog.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/localbeat/localbeat/internal/domain/root"
)

// audioExts is the supported audio extension set.
var audioExts = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".wav":  true,
	".ogg":  true,
}

// Entry is one audio file discovered during a walk.
type Entry struct {
	Path []string // segments relative to the library root
	Size int64
}

// Name returns the file name of the entry.
func (e Entry) Name() string {
	if len(e.Path) == 0 {
		return ""
	}
	return e.Path[len(e.Path)-1]
}

// Walk enumerates audio files under the granted root depth-first, in the
// order the directory listing reports them. Subdirectories that fail to open
// (permission revoked mid-walk, deleted concurrently) are skipped with a
// warning and the walk continues over their siblings; only a root-level
// failure aborts the walk. The visit callback may return an error to stop
// early; that error is passed through.
func Walk(h *root.Handle, visit func(Entry) error) error {
	entries, err := os.ReadDir(h.Abs(nil))
	if err != nil {
		return fmt.Errorf("read library root: %w", err)
	}
	return walkDir(h, nil, entries, visit)
}

func walkDir(h *root.Handle, segments []string, entries []os.DirEntry, visit func(Entry) error) error {
	for _, e := range entries {
		child := append(append([]string(nil), segments...), e.Name())

		if e.IsDir() {
			sub, err := os.ReadDir(h.Abs(child))
			if err != nil {
				log.Warn().Err(err).Str("dir", filepath.Join(child...)).Msg("Skipping unreadable directory")
				continue
			}
			if err := walkDir(h, child, sub, visit); err != nil {
				return err
			}
			continue
		}

		if !audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Join(child...)).Msg("Skipping unreadable file")
			continue
		}
		if err := visit(Entry{Path: child, Size: info.Size()}); err != nil {
			return err
		}
	}
	return nil
}
