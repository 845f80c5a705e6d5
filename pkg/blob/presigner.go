package blob

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"

	"github.com/fieldworks/backoffice/pkg/forms"
)

// PutObjectPresigner is the part of *s3.PresignClient the presigner uses.
type PutObjectPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Presigner issues presigned PUT URLs for signature images.
// It implements forms.SignatureUploadPresigner.
type S3Presigner struct {
	client PutObjectPresigner
	cfg    *BlobConfig
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewS3Presigner creates an S3Presigner over an existing presign client.
func NewS3Presigner(client PutObjectPresigner, cfg *BlobConfig, logger *slog.Logger) *S3Presigner {
	if cfg == nil {
		cfg = DefaultBlobConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Presigner{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
}

// LoadClient loads AWS configuration from the environment and builds an S3
// client for cfg.
func LoadClient(ctx context.Context, cfg *BlobConfig) (*s3.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("blob bucket is not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Client(awsCfg, cfg.Endpoint), nil
}

// newS3Client uses path-style addressing when a custom endpoint is set.
func newS3Client(awsCfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// PresignSignatureUpload returns a short-lived PUT target for one signature
// image of a response. An empty contentType selects the first configured type.
func (p *S3Presigner) PresignSignatureUpload(ctx context.Context, tenantID, responseID, contentType string) (*forms.SignatureUploadTarget, error) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = p.cfg.ContentTypes[0]
	}
	if !slices.Contains(p.cfg.ContentTypes, contentType) {
		return nil, forms.FieldErrors{{
			Kind:    forms.ErrFieldValueInvalid,
			Field:   "contentType",
			Message: fmt.Sprintf("must be one of %s", strings.Join(p.cfg.ContentTypes, ", ")),
		}}
	}

	key := SignatureKey(tenantID, responseID, p.newID(), contentType)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"tenant_id":   tenantID,
			"response_id": responseID,
		},
	}

	expiresAt := p.now().UTC().Add(p.cfg.PresignTTL)
	req, err := p.client.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = p.cfg.PresignTTL })
	if err != nil {
		return nil, fmt.Errorf("presign signature upload: %w", err)
	}

	headers := map[string]string{"Content-Type": contentType}
	for name, values := range req.SignedHeader {
		if len(values) > 0 && !strings.EqualFold(name, "host") {
			headers[name] = values[0]
		}
	}

	p.logger.Debug("signature upload presigned", "tenant", tenantID, "responseID", responseID, "key", key)
	return &forms.SignatureUploadTarget{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   headers,
		ImageRef:  key,
		ExpiresAt: expiresAt,
	}, nil
}
