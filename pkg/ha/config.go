// Package ha provides primitives for running several forms-server replicas
// against one database: serialized schema migrations.
package ha

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// HAConfig holds configuration for multi-replica deployments.
type HAConfig struct {
	// MigrationLockEnabled controls whether database migration locking
	// is used to prevent concurrent schema changes.
	MigrationLockEnabled bool

	// LockName identifies the migration lock. Replicas of one deployment
	// must share it.
	LockName string

	// LockTimeout bounds how long a replica waits for another replica's
	// migration to finish.
	LockTimeout time.Duration

	// StaleLockAge is how old a table-based lock row must be before it is
	// considered abandoned by a crashed replica.
	StaleLockAge time.Duration

	// Identity names this instance in lock rows. Defaults to
	// FORMS_INSTANCE_ID or the hostname.
	Identity string
}

// DefaultHAConfig returns an HAConfig with sensible defaults.
func DefaultHAConfig() *HAConfig {
	return &HAConfig{
		MigrationLockEnabled: true,
		LockName:             "forms-server-migration",
		LockTimeout:          30 * time.Second,
		StaleLockAge:         5 * time.Minute,
		Identity:             defaultIdentity(),
	}
}

// HAConfigFromEnv reads HA configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - FORMS_MIGRATION_LOCK_ENABLED: "true" or "false" (default: "true")
//   - FORMS_MIGRATION_LOCK_NAME: lock name (default: "forms-server-migration")
//   - FORMS_MIGRATION_LOCK_TIMEOUT: seconds (default: 30)
//   - FORMS_MIGRATION_LOCK_STALE_AGE: seconds (default: 300)
//   - FORMS_INSTANCE_ID: instance identity
func HAConfigFromEnv() *HAConfig {
	cfg := DefaultHAConfig()

	if v := os.Getenv("FORMS_MIGRATION_LOCK_ENABLED"); v != "" {
		cfg.MigrationLockEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("FORMS_MIGRATION_LOCK_NAME"); v != "" {
		cfg.LockName = v
	}
	if v := os.Getenv("FORMS_MIGRATION_LOCK_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.LockTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("FORMS_MIGRATION_LOCK_STALE_AGE"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.StaleLockAge = time.Duration(secs) * time.Second
		}
	}

	return cfg
}

func defaultIdentity() string {
	if v := os.Getenv("FORMS_INSTANCE_ID"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
