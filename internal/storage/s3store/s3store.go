// Package s3store uploads batch outputs to S3-compatible object storage.
package s3store

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/config"
)

// ErrStorageFailed wraps every error raised by the object store.
var ErrStorageFailed = errors.New("storage failed")

// Store writes objects into one bucket.
type Store struct {
	bucket   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// New builds a store from cfg. Static credentials are used when an access
// key is configured; otherwise the SDK's default chain applies.
func New(cfg config.Storage) (*Store, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
		DisableSSL:       aws.Bool(cfg.DisableSSL),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.AccessSecret, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrapf(ErrStorageFailed, "s3 session could not be created: %v", err)
	}

	uploader := s3manager.NewUploader(sess)
	uploader.Concurrency = 1

	return &Store{
		bucket:   cfg.Bucket,
		client:   s3.New(sess),
		uploader: uploader,
	}, nil
}

// Bucket returns the target bucket.
func (s *Store) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket unless it already exists.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil && !alreadyExists(err) {
		return errors.Wrapf(ErrStorageFailed, "could not create bucket %s: %v", s.bucket, err)
	}
	return nil
}

func alreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, s3.ErrCodeBucketAlreadyExists) ||
		strings.Contains(msg, s3.ErrCodeBucketAlreadyOwnedByYou)
}

// Put uploads data under key and returns the object location.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	in := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	out, err := s.uploader.UploadWithContext(ctx, in)
	if err != nil {
		return "", errors.Wrapf(ErrStorageFailed, "could not upload %s to bucket %s: %v", key, s.bucket, err)
	}
	return out.Location, nil
}

// CleanKey normalizes key into a relative slash-separated object key.
// Keys that are empty or climb out of the bucket root are rejected.
func CleanKey(key string) (string, error) {
	n := strings.ReplaceAll(key, "\\", "/")
	for _, seg := range strings.Split(n, "/") {
		if seg == ".." {
			return "", errors.Wrapf(ErrStorageFailed, "invalid object key %q", key)
		}
	}
	k := strings.TrimPrefix(path.Clean("/"+n), "/")
	if k == "" {
		return "", errors.Wrapf(ErrStorageFailed, "invalid object key %q", key)
	}
	return k, nil
}
