// Package blob issues presigned S3 uploads for signature images. The form
// engine stores only the returned object key; image bytes never pass
// through the server.
package blob

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// BlobConfig configures the signature image bucket.
type BlobConfig struct {
	// Bucket receives signature images. An empty bucket disables presigning.
	Bucket string

	// Region is the bucket's AWS region.
	Region string

	// Endpoint overrides the S3 endpoint, e.g. http://localstack:4566.
	// Path-style addressing is used when set.
	Endpoint string

	// PresignTTL is how long an upload URL stays valid.
	PresignTTL time.Duration

	// ContentTypes lists the accepted image types. The first is the default.
	ContentTypes []string
}

// DefaultBlobConfig returns a BlobConfig with sensible defaults.
func DefaultBlobConfig() *BlobConfig {
	return &BlobConfig{
		Region:       "us-east-1",
		PresignTTL:   15 * time.Minute,
		ContentTypes: []string{"image/png", "image/jpeg", "image/svg+xml"},
	}
}

// BlobConfigFromEnv reads blob configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - FORMS_BLOB_BUCKET: bucket name (default: unset, presigning disabled)
//   - FORMS_BLOB_REGION: AWS region (default: "us-east-1")
//   - FORMS_BLOB_PRESIGN_TTL_SECONDS: upload URL lifetime (default: 900)
//   - FORMS_BLOB_CONTENT_TYPES: comma-separated accepted types
//   - AWS_ENDPOINT_URL: custom S3 endpoint
func BlobConfigFromEnv() *BlobConfig {
	cfg := DefaultBlobConfig()

	cfg.Bucket = os.Getenv("FORMS_BLOB_BUCKET")
	if v := os.Getenv("FORMS_BLOB_REGION"); v != "" {
		cfg.Region = v
	}
	cfg.Endpoint = os.Getenv("AWS_ENDPOINT_URL")
	if v := os.Getenv("FORMS_BLOB_PRESIGN_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.PresignTTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("FORMS_BLOB_CONTENT_TYPES"); v != "" {
		var types []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		if len(types) > 0 {
			cfg.ContentTypes = types
		}
	}

	return cfg
}

// Enabled reports whether a bucket is configured.
func (c *BlobConfig) Enabled() bool {
	return c != nil && c.Bucket != ""
}
