package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	platformerrors "refract-server-go/internal/platform/errors"
)

// S3Config connects an S3-compatible endpoint (AWS, MinIO, Ceph).
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// S3Storage stores blobs in one bucket. It doubles as a loader for
// bucket-hosted sources and as a result store; object expiry is left to
// bucket lifecycle rules, so the TTL argument is ignored.
type S3Storage struct {
	client *minio.Client
	cfg    S3Config
}

func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: s3Transport(),
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "storage.s3",
			"building client", err)
	}
	return &S3Storage{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the configured bucket when missing.
func (s *S3Storage) EnsureBucket(ctx context.Context) error {
	const op = "storage.s3"

	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, op,
			"checking bucket", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, op,
			"creating bucket", err)
	}
	return nil
}

func (s *S3Storage) objectKey(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return s.cfg.Prefix + "/" + key
}

func (s *S3Storage) Load(ctx context.Context, uri string) (Blob, error) {
	return s.Get(ctx, uri)
}

func (s *S3Storage) Get(ctx context.Context, key string) (Blob, error) {
	const op = "storage.s3"

	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return Blob{}, platformerrors.Wrap(platformerrors.KindStorage, op,
			"getting object", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Blob{}, fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
		}
		return Blob{}, platformerrors.Wrap(platformerrors.KindStorage, op,
			"reading object", err)
	}

	stat, err := obj.Stat()
	if err != nil {
		return Blob{Data: data}, nil
	}
	return Blob{Data: data, ContentType: stat.ContentType}, nil
}

func (s *S3Storage) Put(ctx context.Context, key string, blob Blob, _ time.Duration) error {
	const op = "storage.s3"

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, s.objectKey(key),
		bytes.NewReader(blob.Data), int64(len(blob.Data)),
		minio.PutObjectOptions{ContentType: blob.ContentType})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, op,
			"putting object", err)
	}
	return nil
}

func s3Transport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
