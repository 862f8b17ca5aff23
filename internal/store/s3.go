package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"cdnsync/internal/deploy"
	"cdnsync/internal/etag"
)

const (
	// HashMetadataKey is the user metadata entry holding the content hash.
	// S3 exposes it as the x-amz-meta-content-hash header.
	HashMetadataKey = "content-hash"

	// maxDeleteKeys is the S3 limit on keys per DeleteObjects request.
	maxDeleteKeys = 1000

	defaultHeadConcurrency = 16
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string // for S3-compatible services; empty for AWS
	// AccessKey and SecretKey select static credentials. When empty the
	// default AWS credential chain is used.
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	// HeadConcurrency bounds the HeadObject calls made by List.
	HeadConcurrency int
}

// S3Store is a Store backed by an S3 bucket. The content hash of every
// object uploaded through it is kept in the object's user metadata, since
// S3 ETags are not content hashes in the sense the diff needs.
type S3Store struct {
	name            string
	bucket          string
	client          S3API
	uploader        *manager.Uploader
	headConcurrency int
}

// NewS3Store creates an S3 store, loading AWS configuration from the
// environment and applying opts on top.
func NewS3Store(ctx context.Context, name string, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 store %q: bucket is required", name)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return NewS3StoreWithClient(name, opts.Bucket, client, opts.HeadConcurrency), nil
}

// NewS3StoreWithClient creates an S3 store around an existing client.
func NewS3StoreWithClient(name, bucket string, client S3API, headConcurrency int) *S3Store {
	if headConcurrency <= 0 {
		headConcurrency = defaultHeadConcurrency
	}
	return &S3Store{
		name:            name,
		bucket:          bucket,
		client:          client,
		uploader:        manager.NewUploader(client),
		headConcurrency: headConcurrency,
	}
}

// List pages through the bucket and resolves each object's content hash
// from its metadata. Objects without the metadata report their ETag.
func (s *S3Store) List(ctx context.Context, prefix string) ([]deploy.FileRecord, error) {
	var objects []types.Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, deploy.NewOpError("list", prefix, err)
		}
		objects = append(objects, page.Contents...)
	}

	records := make([]deploy.FileRecord, len(objects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.headConcurrency)
	for i, obj := range objects {
		g.Go(func() error {
			key := aws.ToString(obj.Key)
			hash, err := s.objectHash(gctx, key, aws.ToString(obj.ETag))
			if err != nil {
				return err
			}
			records[i] = deploy.FileRecord{Filename: key, Hash: hash}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *S3Store) objectHash(ctx context.Context, key, fallback string) (string, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			// Deleted between list and head; the listing is still usable.
			return strings.Trim(fallback, `"`), nil
		}
		return "", deploy.NewOpError("head", key, err)
	}
	if hash, ok := out.Metadata[HashMetadataKey]; ok && hash != "" {
		return hash, nil
	}
	return strings.Trim(aws.ToString(out.ETag), `"`), nil
}

// Fetch downloads the object stored under key.
func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, deploy.NewOpError("fetch", key, deploy.ErrNotFound)
		}
		return nil, deploy.NewOpError("fetch", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, deploy.NewOpError("fetch", key, fmt.Errorf("reading body: %w", err))
	}
	return data, nil
}

// Upload buffers the content to hash it, then writes it with the hash in
// the object metadata.
func (s *S3Store) Upload(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", deploy.NewOpError("upload", key, fmt.Errorf("failed to read content: %w", err))
	}
	if int64(len(data)) != size {
		return "", deploy.NewOpError("upload", key, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data)))
	}

	hash := etag.Sum(data)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType(key, data)),
		Metadata:      map[string]string{HashMetadataKey: hash},
	})
	if err != nil {
		return "", deploy.NewOpError("upload", key, err)
	}
	return hash, nil
}

// BatchDelete removes keys in requests of at most 1000 keys.
func (s *S3Store) BatchDelete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteKeys {
		end := min(start+maxDeleteKeys, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deploy.NewOpError("delete", "", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deploy.NewOpError("delete", aws.ToString(first.Key),
				fmt.Errorf("%d keys not deleted, first: %s: %s",
					len(out.Errors), aws.ToString(first.Code), aws.ToString(first.Message)))
		}
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is accessible.
func (s *S3Store) ValidateSetup(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

// isNotFound reports whether err is an S3 missing-object error.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// contentType picks the Content-Type for an upload. The extension wins for
// web assets (sniffing reports text/plain for JS and CSS); content sniffing
// covers extensionless keys.
func contentType(key string, data []byte) string {
	if ext := path.Ext(key); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return t
		}
	}
	return mimetype.Detect(data).String()
}

// Compile-time check that S3Store implements deploy.Store interface
var _ deploy.Store = (*S3Store)(nil)
