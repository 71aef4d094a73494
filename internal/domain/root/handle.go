// Package root models the library root capability: read access to one
// user-granted directory tree.
package root

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ErrInaccessible reports that the granted directory can no longer be read.
// The catalog is kept as-is when this happens; stale-but-valid beats empty.
var ErrInaccessible = errors.New("library root inaccessible")

// Handle is an opaque capability over a granted directory. It is owned by
// the engine's lifecycle (constructed at grant, restored at startup, torn
// down on clear), never kept as ambient global state.
type Handle struct {
	path string
}

// Grant creates a handle in direct response to a user action. The directory
// must exist and be readable at grant time.
func Grant(path string) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve library root: %w", err)
	}
	h := &Handle{path: abs}
	if err := h.Verify(); err != nil {
		return nil, err
	}
	log.Info().Str("path", abs).Msg("Library root granted")
	return h, nil
}

// Restore rebuilds a handle from its persisted form without prompting.
// Access is not checked here; callers verify passively before scanning.
func Restore(path string) *Handle {
	return &Handle{path: path}
}

// Path returns the persisted form of the capability.
func (h *Handle) Path() string {
	return h.path
}

// Verify re-checks read access passively, with no user interaction. It is
// called on startup and before every scan; revocation surfaces as
// ErrInaccessible.
func (h *Handle) Verify() error {
	info, err := os.Stat(h.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInaccessible, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInaccessible, h.path)
	}
	dir, err := os.Open(h.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInaccessible, err)
	}
	defer dir.Close()
	// An empty root reads back io.EOF, which is fine.
	if _, err := dir.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInaccessible, err)
	}
	return nil
}

// Abs resolves path segments relative to the root into an absolute path.
func (h *Handle) Abs(segments []string) string {
	return filepath.Join(append([]string{h.path}, segments...)...)
}

// Open opens a file under the root for reading.
func (h *Handle) Open(segments []string) (*os.File, error) {
	return os.Open(h.Abs(segments))
}

// ReadFile reads an entire file under the root into memory.
func (h *Handle) ReadFile(segments []string) ([]byte, error) {
	return os.ReadFile(h.Abs(segments))
}
