// Package home resolves the on-disk data directory layout shared by the
// Name Service and Data Node processes.
//
// Layout:
//
//	<root>/
//	  snapshot.bin     (Name Service metadata snapshot, see internal/nameservice)
//	  chunks/          (Data Node local chunk blobs, {fileName}-{chunkNumber}{extension})
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents a data home directory for one process.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/distcompute/<component>
//   - macOS:   ~/Library/Application Support/distcompute/<component>
//   - Windows: %APPDATA%/distcompute/<component>
func Default(component string) (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "distcompute", component)}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// SnapshotPath returns the Name Service's metadata snapshot file path.
func (d Dir) SnapshotPath() string {
	return filepath.Join(d.root, "snapshot.bin")
}

// ChunkDir returns the Data Node's local chunk storage directory.
func (d Dir) ChunkDir() string {
	return filepath.Join(d.root, "chunks")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}
