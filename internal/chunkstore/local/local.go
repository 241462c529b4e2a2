// Package local is the default chunk store backend: chunk blobs as plain
// files on the Data Node's local disk, named via chunkstore.Key.Name(),
// each write guarded by 0644 permissions.
package local

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"distcompute/internal/chunkstore"
	"distcompute/internal/logging"
)

const ParamDir = "dir"

const defaultFileMode = 0o644

type store struct {
	dir    string
	logger *slog.Logger
}

// NewFactory returns a chunkstore.Factory for the local-disk backend.
func NewFactory() chunkstore.Factory {
	return func(params map[string]string, logger *slog.Logger) (chunkstore.Store, error) {
		dir, ok := params[ParamDir]
		if !ok || dir == "" {
			return nil, errors.New("local chunk store: missing required parameter \"dir\"")
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create chunk directory %s: %w", dir, err)
		}
		return &store{dir: dir, logger: logging.Default(logger).With("component", "chunkstore-local")}, nil
	}
}

func (s *store) path(key chunkstore.Key) string {
	return filepath.Join(s.dir, key.Name())
}

func (s *store) Put(key chunkstore.Key, data []byte) error {
	if err := os.WriteFile(s.path(key), data, defaultFileMode); err != nil {
		return fmt.Errorf("write chunk %s: %w", key.Name(), err)
	}
	return nil
}

func (s *store) Get(key chunkstore.Key) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, chunkstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", key.Name(), err)
	}
	return data, nil
}

func (s *store) Delete(key chunkstore.Key) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete chunk %s: %w", key.Name(), err)
	}
	return nil
}

func init() {
	chunkstore.Register("local", NewFactory())
}
