package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of *s3.Client the object store writes with.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// GetObjectPresigner is the part of *s3.PresignClient used for downloads.
type GetObjectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3ObjectStore writes generated files, such as exports, to the bucket and
// hands out presigned download URLs for them.
type S3ObjectStore struct {
	client  PutObjectAPI
	presign GetObjectPresigner
	cfg     *BlobConfig
	now     func() time.Time
}

// NewS3ObjectStore creates an S3ObjectStore.
func NewS3ObjectStore(client PutObjectAPI, presign GetObjectPresigner, cfg *BlobConfig) *S3ObjectStore {
	if cfg == nil {
		cfg = DefaultBlobConfig()
	}
	return &S3ObjectStore{client: client, presign: presign, cfg: cfg, now: time.Now}
}

// PutObject uploads body under key.
func (o *S3ObjectStore) PutObject(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	_, err := o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(o.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// PresignDownload returns a GET URL for key that saves the object as filename.
func (o *S3ObjectStore) PresignDownload(ctx context.Context, key, filename string) (string, time.Time, error) {
	expiresAt := o.now().UTC().Add(o.cfg.PresignTTL)
	req, err := o.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(o.cfg.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf(`attachment; filename="%s"`, filename)),
	}, func(opts *s3.PresignOptions) { opts.Expires = o.cfg.PresignTTL })
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign download %s: %w", key, err)
	}
	return req.URL, expiresAt, nil
}
