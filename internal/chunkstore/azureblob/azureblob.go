// Package azureblob is a chunk store backend backed by Azure Blob Storage.
package azureblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"distcompute/internal/chunkstore"
	"distcompute/internal/logging"
)

// Factory parameter keys.
const (
	ParamServiceURL    = "serviceURL" // e.g. https://<account>.blob.core.windows.net
	ParamContainer     = "container"
	ParamConnectionStr = "connectionString" // alternative to serviceURL + default credential
)

type store struct {
	client    *azblob.Client
	container string
	logger    *slog.Logger
}

// NewFactory returns a chunkstore.Factory for the Azure Blob backend.
func NewFactory() chunkstore.Factory {
	return func(params map[string]string, logger *slog.Logger) (chunkstore.Store, error) {
		container, ok := params[ParamContainer]
		if !ok || container == "" {
			return nil, errors.New("azureblob chunk store: missing required parameter \"container\"")
		}

		var client *azblob.Client
		var err error
		if connStr := params[ParamConnectionStr]; connStr != "" {
			client, err = azblob.NewClientFromConnectionString(connStr, nil)
		} else {
			serviceURL := params[ParamServiceURL]
			if serviceURL == "" {
				return nil, errors.New("azureblob chunk store: need \"serviceURL\" or \"connectionString\"")
			}
			var cred *azidentity.DefaultAzureCredential
			cred, err = azidentity.NewDefaultAzureCredential(nil)
			if err == nil {
				client, err = azblob.NewClient(serviceURL, cred, nil)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("create azure blob client: %w", err)
		}

		return &store{
			client:    client,
			container: container,
			logger:    logging.Default(logger).With("component", "chunkstore-azureblob", "container", container),
		}, nil
	}
}

func (s *store) Put(key chunkstore.Key, data []byte) error {
	_, err := s.client.UploadBuffer(context.Background(), s.container, key.Name(), data, nil)
	if err != nil {
		return fmt.Errorf("azureblob put %s: %w", key.Name(), err)
	}
	return nil
}

func (s *store) Get(key chunkstore.Key) ([]byte, error) {
	resp, err := s.client.DownloadStream(context.Background(), s.container, key.Name(), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, chunkstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("azureblob get %s: %w", key.Name(), err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("azureblob read body %s: %w", key.Name(), err)
	}
	return data, nil
}

func (s *store) Delete(key chunkstore.Key) error {
	_, err := s.client.DeleteBlob(context.Background(), s.container, key.Name(), nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("azureblob delete %s: %w", key.Name(), err)
	}
	return nil
}

func init() {
	chunkstore.Register("azureblob", NewFactory())
}
