// Package gcs is a chunk store backend backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"

	"distcompute/internal/chunkstore"
	"distcompute/internal/logging"
)

// Factory parameter keys.
const (
	ParamBucket = "bucket"
	ParamPrefix = "prefix"
)

type store struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewFactory returns a chunkstore.Factory for the GCS backend.
func NewFactory() chunkstore.Factory {
	return func(params map[string]string, logger *slog.Logger) (chunkstore.Store, error) {
		bucket, ok := params[ParamBucket]
		if !ok || bucket == "" {
			return nil, errors.New("gcs chunk store: missing required parameter \"bucket\"")
		}

		client, err := storage.NewClient(context.Background())
		if err != nil {
			return nil, fmt.Errorf("create GCS client: %w", err)
		}

		return &store{
			client: client,
			bucket: bucket,
			prefix: params[ParamPrefix],
			logger: logging.Default(logger).With("component", "chunkstore-gcs", "bucket", bucket),
		}, nil
	}
}

func (s *store) objectName(key chunkstore.Key) string {
	if s.prefix == "" {
		return key.Name()
	}
	return s.prefix + "/" + key.Name()
}

func (s *store) Put(key chunkstore.Key, data []byte) error {
	ctx := context.Background()
	w := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs put %s: %w", key.Name(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs put %s: close: %w", key.Name(), err)
	}
	return nil
}

func (s *store) Get(key chunkstore.Key) ([]byte, error) {
	ctx := context.Background()
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, chunkstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get %s: %w", key.Name(), err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read body %s: %w", key.Name(), err)
	}
	return data, nil
}

func (s *store) Delete(key chunkstore.Key) error {
	ctx := context.Background()
	err := s.client.Bucket(s.bucket).Object(s.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", key.Name(), err)
	}
	return nil
}

func init() {
	chunkstore.Register("gcs", NewFactory())
}
