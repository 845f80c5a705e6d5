package audit

import (
	"os"
	"strconv"
	"time"
)

// AuditConfig controls what the audit trail records and how long it keeps it.
type AuditConfig struct {
	Enabled bool
	// LogDenied records requests rejected with 403.
	LogDenied bool
	// DomainEvents records form engine events (form.created,
	// response.submitted, ...) next to the HTTP requests that caused them.
	DomainEvents      bool
	RetentionDays     int
	RetentionInterval time.Duration
}

// DefaultAuditConfig keeps 90 days of requests and domain events, swept daily.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:           true,
		LogDenied:         true,
		DomainEvents:      true,
		RetentionDays:     90,
		RetentionInterval: 24 * time.Hour,
	}
}

// AuditConfigFromEnv overlays FORMS_AUDIT_ENABLED, FORMS_AUDIT_LOG_DENIED,
// FORMS_AUDIT_DOMAIN_EVENTS, FORMS_AUDIT_RETENTION_DAYS and
// FORMS_AUDIT_RETENTION_INTERVAL on the defaults. Unparsable values keep
// the default.
func AuditConfigFromEnv() *AuditConfig {
	cfg := DefaultAuditConfig()
	envBool("FORMS_AUDIT_ENABLED", &cfg.Enabled)
	envBool("FORMS_AUDIT_LOG_DENIED", &cfg.LogDenied)
	envBool("FORMS_AUDIT_DOMAIN_EVENTS", &cfg.DomainEvents)
	if v, err := strconv.Atoi(os.Getenv("FORMS_AUDIT_RETENTION_DAYS")); err == nil && v > 0 {
		cfg.RetentionDays = v
	}
	if d, err := time.ParseDuration(os.Getenv("FORMS_AUDIT_RETENTION_INTERVAL")); err == nil && d > 0 {
		cfg.RetentionInterval = d
	}
	return cfg
}

func envBool(key string, dst *bool) {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = b
	}
}
