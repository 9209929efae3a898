package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds connection settings for an S3-compatible endpoint.
type MinioConfig struct {
	// Endpoint like "s3.us-west-2.amazonaws.com". Credentials come from the
	// standard AWS environment variables.
	Endpoint string
	Region   string
	UseSSL   bool
	// RequesterPays adds the x-amz-request-payer header to every request,
	// covering listing and transfers alike.
	RequesterPays bool
}

// MinioStore implements Store on top of the MinIO SDK. Listing goes through
// the low-level Core API so that marker-based pagination stays visible to
// the caller instead of being drained behind a channel.
type MinioStore struct {
	core *minio.Core
}

type requesterPaysTransport struct {
	base http.RoundTripper
}

func (t requesterPaysTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("x-amz-request-payer", "requester")
	return t.base.RoundTrip(req)
}

func NewMinio(cfg MinioConfig) (*MinioStore, error) {
	opts := &minio.Options{
		Creds:  credentials.NewEnvAWS(),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.RequesterPays {
		opts.Transport = requesterPaysTransport{base: http.DefaultTransport}
	}
	core, err := minio.NewCore(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{core: core}, nil
}

// listPageSize bounds one listing request; the contract in ListKeys handles
// continuation across pages.
const listPageSize = 1000

func (s *MinioStore) ListPage(ctx context.Context, bucket, prefix, marker string) (Page, error) {
	res, err := s.core.ListObjects(bucket, prefix, marker, "", listPageSize)
	if err != nil {
		return Page{}, fmt.Errorf("list objects: %w", err)
	}
	keys := make([]string, 0, len(res.Contents))
	for _, obj := range res.Contents {
		keys = append(keys, obj.Key)
	}
	return Page{
		Keys:        keys,
		IsTruncated: res.IsTruncated,
		NextMarker:  res.NextMarker,
	}, nil
}

func (s *MinioStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.core.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapNotFound(err, bucket, key)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapNotFound(err, bucket, key)
	}
	return data, nil
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := s.core.Client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *MinioStore) Download(ctx context.Context, bucket, key, path string) error {
	if err := s.core.Client.FGetObject(ctx, bucket, key, path, minio.GetObjectOptions{}); err != nil {
		return mapNotFound(err, bucket, key)
	}
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, bucket, key, path, contentType string) error {
	_, err := s.core.Client.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

func mapNotFound(err error, bucket, key string) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	return fmt.Errorf("get %s/%s: %w", bucket, key, err)
}

var _ Store = (*MinioStore)(nil)
