package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// PublicBaseURL overrides the URL prefix of stored objects, e.g. a CDN.
	PublicBaseURL string
	// ACL is applied to uploaded objects when set, e.g. "public-read".
	ACL string

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Backend is an S3-compatible implementation of the marketplace.BlobStore interface
type Backend struct {
	client  *s3.Client
	bucket  string
	baseURL string
	config  Config
}

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	baseURL, err := publicBaseURL(config)
	if err != nil {
		return nil, err
	}

	backend := &Backend{
		client:  s3.NewFromConfig(awsCfg, s3Options...),
		bucket:  config.Bucket,
		baseURL: baseURL,
		config:  config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return backend, nil
}

var _ marketplace.BlobStore = (*Backend)(nil)

// publicBaseURL derives the URL prefix objects are reachable under.
func publicBaseURL(config Config) (string, error) {
	if config.PublicBaseURL != "" {
		return strings.TrimRight(config.PublicBaseURL, "/"), nil
	}
	if config.Endpoint == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", config.Bucket, config.Region), nil
	}

	u, err := url.Parse(strings.TrimRight(config.Endpoint, "/"))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q", config.Endpoint)
	}
	if config.UsePathStyle {
		return fmt.Sprintf("%s://%s%s/%s", u.Scheme, u.Host, u.Path, config.Bucket), nil
	}
	return fmt.Sprintf("%s://%s.%s%s", u.Scheme, config.Bucket, u.Host, u.Path), nil
}

func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) && !hasCode(err, "NoSuchBucket", "BadRequest") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	if _, err := b.client.CreateBucket(ctx, createInput); err != nil {
		if hasCode(err, "BucketAlreadyExists", "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload streams content to S3 with the multipart uploader
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params marketplace.UploadParams) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(params.ObjectKey),
		Body:        reader,
		ContentType: aws.String(params.MimeType),
	}
	if b.config.ACL != "" {
		input.ACL = types.ObjectCannedACL(b.config.ACL)
	}

	if b.config.EnableSSE {
		switch b.config.SSEAlgorithm {
		case "AES256":
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		case "aws:kms":
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if b.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
			}
		}
	}

	uploader := manager.NewUploader(b.client)
	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Delete removes an object. Missing objects are not an error.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// BaseURL returns the public URL prefix of stored objects
func (b *Backend) BaseURL() string {
	return b.baseURL
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	return hasCode(err, "NoSuchKey", "NotFound")
}

func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
