package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3Config selects the bucket endpoint. Empty fields fall back to the
// default AWS configuration chain.
type S3Config struct {
	Region       string
	Endpoint     string // MinIO, LocalStack
	UsePathStyle bool
}

// S3Storage archives run files into one bucket.
type S3Storage struct {
	client   *s3.Client
	bucket   string
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

// NewS3Storage creates an S3 archive target for bucket.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Storage{
		client:   client,
		bucket:   bucket,
		attempts: 4,
		backoff:  200 * time.Millisecond,
		logger:   zap.NewNop(),
	}, nil
}

// WithLogger sets the logger used to report retried requests.
func (s *S3Storage) WithLogger(log *zap.Logger) {
	s.logger = log.With(zap.String("component", "s3-archive"), zap.String("bucket", s.bucket))
}

// Upload puts the run file at localPath under key. An object already
// holding the same number of bytes is left alone, so re-running a
// conversion does not upload the run twice.
func (s *S3Storage) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if size, ok, err := s.head(ctx, key); err == nil && ok && size == fi.Size() {
		s.logger.Debug("Object already archived", zap.String("key", key), zap.Int64("bytes", size))
		return nil
	}

	err = s.retry(ctx, "put "+key, func() error {
		if _, err := f.Seek(0, 0); err != nil {
			return err
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(fi.Size()),
			ContentType:   aws.String(contentType(key)),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

// Exists reports whether key is present in the bucket.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.head(ctx, key)
	return ok, err
}

// head returns the object's size, or ok=false when it does not exist.
func (s *S3Storage) head(ctx context.Context, key string) (size int64, ok bool, err error) {
	err = s.retry(ctx, "head "+key, func() error {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		var notFound *s3types.NotFound
		switch {
		case errors.As(err, &notFound):
			ok = false
			return nil
		case err != nil:
			return err
		}
		ok = true
		size = aws.ToInt64(out.ContentLength)
		return nil
	})
	return size, ok, err
}

// retry runs fn up to s.attempts times, doubling the pause after each failure.
func (s *S3Storage) retry(ctx context.Context, what string, fn func() error) error {
	wait := s.backoff
	var err error
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(); err == nil {
			return nil
		}
		if attempt == s.attempts {
			return err
		}
		s.logger.Warn("Retrying S3 request",
			zap.String("request", what),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait *= 2
	}
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".sqlite":
		return "application/vnd.sqlite3"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
