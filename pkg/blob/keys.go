package blob

import (
	"fmt"
	"strings"
)

var extensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
}

// SignatureKey builds the object key of a signature image:
// tenants/{tenantID}/signatures/{responseID}/{id}{ext}.
func SignatureKey(tenantID, responseID, id, contentType string) string {
	ext, ok := extensions[contentType]
	if !ok {
		ext = ".bin"
	}
	return fmt.Sprintf("tenants/%s/signatures/%s/%s%s", tenantID, responseID, id, ext)
}

// ParseSignatureKey extracts the tenant and response from a key built by
// SignatureKey.
func ParseSignatureKey(key string) (tenantID, responseID string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || parts[0] != "tenants" || parts[2] != "signatures" {
		return "", "", false
	}
	if parts[1] == "" || parts[3] == "" || parts[4] == "" {
		return "", "", false
	}
	return parts[1], parts[3], true
}
