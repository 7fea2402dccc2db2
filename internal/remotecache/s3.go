package remotecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/opencontainers/go-digest"

	"github.com/vango-dev/propgen/internal/config"
	"github.com/vango-dev/propgen/internal/errors"
)

// MaxObjectSize bounds the artifacts read back from the bucket.
const MaxObjectSize = 8 << 20

const metaDigest = "artifact-digest"

// Client is the subset of the S3 API the cache uses. *s3.Client implements it.
type Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Cache is an artifact cache backed by an S3 bucket.
type S3Cache struct {
	client Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3 creates a cache storing objects in bucket below prefix.
func NewS3(client Client, bucket, prefix string, logger *slog.Logger) *S3Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Cache{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Key returns the object key of a group digest.
func (c *S3Cache) Key(d digest.Digest) string {
	return c.prefix + d.Algorithm().String() + "/" + d.Encoded()
}

// Fetch returns the artifact stored under d. Missing and corrupt objects
// are reported as misses.
func (c *S3Cache) Fetch(ctx context.Context, d digest.Digest) ([]byte, bool, error) {
	key := c.Key(d)
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, unavailable("get", key, err)
	}
	defer out.Body.Close()

	src, err := io.ReadAll(io.LimitReader(out.Body, MaxObjectSize+1))
	if err != nil {
		return nil, false, unavailable("read", key, err)
	}
	if len(src) > MaxObjectSize {
		c.logger.Warn("remote artifact too large", "key", key)
		return nil, false, nil
	}

	if want, ok := out.Metadata[metaDigest]; ok {
		if got := digest.FromBytes(src); got.String() != want {
			c.logger.Warn("remote artifact digest mismatch", "key", key, "want", want, "got", got.String())
			return nil, false, nil
		}
	}
	return src, true, nil
}

// Store uploads src under d.
func (c *S3Cache) Store(ctx context.Context, d digest.Digest, src []byte) error {
	key := c.Key(d)
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(src),
		ContentLength: aws.Int64(int64(len(src))),
		ContentType:   aws.String("text/x-go; charset=utf-8"),
		Metadata: map[string]string{
			metaDigest: digest.FromBytes(src).String(),
		},
	})
	if err != nil {
		return unavailable("put", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var api smithy.APIError
	if errors.As(err, &api) {
		switch api.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func unavailable(op, key string, err error) error {
	return errors.New("E302").
		WithSubject(key).
		WithDetail(fmt.Sprintf("S3 %s failed.", op)).
		Wrap(err)
}

// NewClient creates an S3 client from the cache configuration. Credentials
// are read from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
// AWS_SESSION_TOKEN; the region defaults to AWS_REGION.
func NewClient(cfg config.S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		return nil, errors.New("E101").
			WithSubject("cache.s3.region").
			WithDetail("The S3 artifact cache needs a region.").
			WithSuggestion("Set cache.s3.region in propgen.yaml or AWS_REGION")
	}

	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
		Credentials:  aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts), nil
}

func envCredentials(context.Context) (aws.Credentials, error) {
	creds := aws.Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "propgen environment",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return creds, nil
}
