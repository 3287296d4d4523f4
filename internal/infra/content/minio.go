package content

import (
	"context"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	zlog "github.com/rs/zerolog/log"
)

// MinioConfig holds connection settings for an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Bucket serves track content from one MinIO/S3 bucket.
type Bucket struct {
	client *minio.Client
	bucket string
}

// NewBucket creates a bucket client. No request is made until first use.
func NewBucket(cfg MinioConfig) (*Bucket, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("minio endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create minio client")
	}

	zlog.Info().Msgf("content: minio bucket configured: endpoint=%s bucket=%s", cfg.Endpoint, cfg.Bucket)
	return &Bucket{client: client, bucket: cfg.Bucket}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.bucket
}

// List returns every object below prefix.
func (b *Bucket) List(ctx context.Context, prefix string) ([]Object, error) {
	objectCh := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var objects []Object
	for obj := range objectCh {
		if obj.Err != nil {
			return nil, errors.Wrapf(obj.Err, "failed to list objects: bucket=%s prefix=%s", b.bucket, prefix)
		}
		objects = append(objects, Object{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return objects, nil
}

// Open opens an s3://bucket/key locator or a bare key.
func (b *Bucket) Open(ctx context.Context, locator string) (*Content, error) {
	key := locator
	if bucket, k, ok := ParseS3(locator); ok {
		if bucket != b.bucket {
			return nil, errors.Wrapf(ErrUnsupported, "locator %q is not in bucket %s", locator, b.bucket)
		}
		key = k
	}

	stat, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.Wrapf(ErrNotFound, "key=%s", key)
		}
		return nil, errors.Wrapf(err, "failed to stat object %s", key)
	}

	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get object %s", key)
	}

	contentType := stat.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ContentType(key)
	}
	return &Content{
		ReadSeekCloser: obj,
		Name:           path.Base(key),
		Size:           stat.Size,
		ModTime:        stat.LastModified,
		ContentType:    contentType,
	}, nil
}
