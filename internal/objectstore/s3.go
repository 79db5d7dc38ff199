package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/foliodesk/folio/internal/backend"
)

// s3API is the subset of the S3 client this package calls.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures an S3 store.
type S3Options struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, for MinIO and similar servers.
	Endpoint string
	// PublicBaseURL is the origin objects are served from. When empty it is
	// derived from Endpoint or the regional AWS host.
	PublicBaseURL string
	PathStyle     bool
}

// S3 stores each logical bucket as a key prefix inside one S3 bucket.
type S3 struct {
	client  s3API
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// NewS3 loads AWS credentials from the default chain and builds a client.
func NewS3(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return newS3(client, opts, cfg.Region, logger), nil
}

func newS3(client s3API, opts S3Options, region string, logger *slog.Logger) *S3 {
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.PublicBaseURL
	if base == "" {
		switch {
		case opts.Endpoint != "" && opts.PathStyle:
			base = joinURL(opts.Endpoint, opts.Bucket)
		case opts.Endpoint != "":
			base = opts.Endpoint
		case region != "":
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, region)
		default:
			base = fmt.Sprintf("https://%s.s3.amazonaws.com", opts.Bucket)
		}
	}
	return &S3{client: client, bucket: opts.Bucket, baseURL: base, logger: logger}
}

// Upload puts the object with If-None-Match so existing keys are kept.
func (s *S3) Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) error {
	key, err := cleanKey(bucket, path)
	if err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(bucket + "/" + key),
		Body:        r,
		IfNoneMatch: aws.String("*"),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		if apiErrorCode(err) == "PreconditionFailed" {
			return fmt.Errorf("%w: %s/%s", ErrExists, bucket, key)
		}
		return fmt.Errorf("s3 put %s/%s: %w", bucket, key, err)
	}
	s.logger.Info("object stored", "bucket", bucket, "path", key, "bytes", size, "content_type", contentType)
	return nil
}

// PublicURL returns the object URL under the public base.
func (s *S3) PublicURL(bucket, path string) string {
	return joinURL(s.baseURL, bucket, strings.TrimLeft(path, "/"))
}

// Delete removes an object. S3 treats missing keys as success.
func (s *S3) Delete(ctx context.Context, bucket, path string) error {
	key, err := cleanKey(bucket, path)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(bucket + "/" + key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// List pages through ListObjectsV2 under bucket/prefix.
func (s *S3) List(ctx context.Context, bucket, prefix string) ([]backend.ObjectInfo, error) {
	prefix, err := cleanPrefix(bucket, prefix)
	if err != nil {
		return nil, err
	}
	root := bucket + "/"
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(root + prefix),
	})

	var out []backend.ObjectInfo
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			info := backend.ObjectInfo{
				Bucket: bucket,
				Path:   strings.TrimPrefix(aws.ToString(obj.Key), root),
				Size:   aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = obj.LastModified.UTC()
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
