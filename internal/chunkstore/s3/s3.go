// Package s3 is a chunk store backend backed by Amazon S3 (or an
// S3-compatible endpoint), for Data Nodes that want durable object storage
// instead of local disk. Selected the same way the local backend is:
// chunkstore.Open("s3", params, logger).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"distcompute/internal/chunkstore"
	"distcompute/internal/logging"
)

// Factory parameter keys.
const (
	ParamBucket   = "bucket"
	ParamPrefix   = "prefix"
	ParamEndpoint = "endpoint" // optional, for S3-compatible endpoints
	ParamRegion   = "region"
)

type store struct {
	client *awss3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewFactory returns a chunkstore.Factory for the S3 backend.
func NewFactory() chunkstore.Factory {
	return func(params map[string]string, logger *slog.Logger) (chunkstore.Store, error) {
		bucket, ok := params[ParamBucket]
		if !ok || bucket == "" {
			return nil, errors.New("s3 chunk store: missing required parameter \"bucket\"")
		}

		ctx := context.Background()
		var optFns []func(*config.LoadOptions) error
		if region := params[ParamRegion]; region != "" {
			optFns = append(optFns, config.WithRegion(region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}

		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if endpoint := params[ParamEndpoint]; endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		})

		return &store{
			client: client,
			bucket: bucket,
			prefix: params[ParamPrefix],
			logger: logging.Default(logger).With("component", "chunkstore-s3", "bucket", bucket),
		}, nil
	}
}

func (s *store) objectKey(key chunkstore.Key) string {
	if s.prefix == "" {
		return key.Name()
	}
	return s.prefix + "/" + key.Name()
}

func (s *store) Put(key chunkstore.Key, data []byte) error {
	_, err := s.client.PutObject(context.Background(), &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key.Name(), err)
	}
	return nil
}

func (s *store) Get(key chunkstore.Key) ([]byte, error) {
	out, err := s.client.GetObject(context.Background(), &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if isNotFound(err) {
		return nil, chunkstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", key.Name(), err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body %s: %w", key.Name(), err)
	}
	return data, nil
}

func (s *store) Delete(key chunkstore.Key) error {
	_, err := s.client.DeleteObject(context.Background(), &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete %s: %w", key.Name(), err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound"
	}
	return false
}

func init() {
	chunkstore.Register("s3", NewFactory())
}
