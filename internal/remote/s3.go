package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/esantos/moneta/internal/logging"
	"github.com/esantos/moneta/internal/types"
	"github.com/esantos/moneta/internal/utils"
)

// metadataFingerprintKey is the S3 object-metadata key carrying the
// database fingerprint. S3 lower-cases user metadata keys.
const metadataFingerprintKey = "moneta-content-hash"

// S3Options configures the S3 backend.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Client implements Client against an S3 bucket. Folder targets map
// to key prefixes holding the conventionally-named database object;
// file targets map to one fixed object key.
type S3Client struct {
	client *s3.Client
	bucket string
	logger logging.Logger
}

// NewS3Client builds an S3-backed remote client. Empty credentials fall
// back to the default AWS credential chain.
func NewS3Client(ctx context.Context, opts S3Options, logger logging.Logger) (*S3Client, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client: client,
		bucket: opts.Bucket,
		logger: logger,
	}, nil
}

// objectKey maps a sync target onto its S3 key.
func objectKey(target types.SyncTarget) string {
	switch target.Kind {
	case types.TargetFolder:
		return path.Join(strings.TrimSuffix(target.ID, "/"), utils.BackupFileName)
	default:
		return target.ID
	}
}

func (c *S3Client) Stat(ctx context.Context, target types.SyncTarget) (Info, error) {
	key := objectKey(target)
	head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return Info{Exists: false}, nil
		}
		return Info{}, &TransportError{Err: err}
	}

	info := Info{
		Exists:      true,
		FileID:      key,
		Fingerprint: head.Metadata[metadataFingerprintKey],
	}
	if head.LastModified != nil {
		utc := head.LastModified.UTC()
		info.ModifiedTime = &utc
	}
	return info, nil
}

func (c *S3Client) Download(ctx context.Context, target types.SyncTarget, destPath string) error {
	key := objectKey(target)
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ErrNotFound
		}
		return &TransportError{Err: err}
	}
	defer out.Body.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, out.Body); err != nil {
		return &TransportError{Err: err}
	}
	return dest.Sync()
}

func (c *S3Client) Upload(ctx context.Context, target types.SyncTarget, sourcePath, fingerprint string) (string, error) {
	key := objectKey(target)

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", sourcePath, err)
	}
	defer src.Close()

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		Body:     src,
		Metadata: map[string]string{metadataFingerprintKey: fingerprint},
	})
	if err != nil {
		return "", &TransportError{Err: err}
	}

	c.logger.Debug("uploaded database to S3",
		logging.F("bucket", c.bucket),
		logging.F("key", key),
	)
	return key, nil
}

func isS3NotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noKey *s3types.NoSuchKey
	return errors.As(err, &noKey)
}
