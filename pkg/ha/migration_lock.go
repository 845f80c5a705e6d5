package ha

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"time"

	"gorm.io/gorm"
)

// MigrationLocker is the interface for acquiring a lock around database
// migrations to prevent concurrent AutoMigrate calls from multiple replicas.
type MigrationLocker interface {
	// WithLock executes fn while holding the migration lock.
	// It blocks until the lock is acquired, then releases it after fn returns.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker creates a MigrationLocker appropriate for the database
// dialect: advisory locks on PostgreSQL, GET_LOCK on MySQL and a lock table
// elsewhere. A nil db or a disabled config yields a lock that only runs fn.
func NewMigrationLocker(db *gorm.DB, cfg *HAConfig) MigrationLocker {
	if cfg == nil {
		cfg = DefaultHAConfig()
	}
	if db == nil || !cfg.MigrationLockEnabled {
		return &noopMigrationLock{}
	}

	switch db.Dialector.Name() {
	case "postgres":
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte(cfg.LockName))),
		}
	case "mysql":
		return &mysqlNamedLock{
			db:      db,
			name:    cfg.LockName,
			timeout: cfg.LockTimeout,
		}
	}

	// Create the lock table immediately so that concurrent callers never
	// hit "no such table" errors on their first WithLock call.
	_ = db.AutoMigrate(&migrationLockRecord{})
	return &fallbackMigrationLock{
		db:            db,
		name:          cfg.LockName,
		owner:         cfg.Identity,
		staleAge:      cfg.StaleLockAge,
		timeout:       cfg.LockTimeout,
		retryInterval: 250 * time.Millisecond,
	}
}

// Migrate runs each step under the migration lock, stopping at the first error.
func Migrate(ctx context.Context, locker MigrationLocker, steps ...func() error) error {
	return locker.WithLock(ctx, func() error {
		for i, step := range steps {
			if err := step(); err != nil {
				return fmt.Errorf("migration step %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// noopMigrationLock is used when no database is configured or locking is off.
type noopMigrationLock struct{}

func (n *noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// pgAdvisoryLock uses PostgreSQL advisory locks for migration serialization.
type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_ = l.db.Exec("SELECT pg_advisory_unlock(?)", l.lockID).Error
	}()

	return fn()
}

// mysqlNamedLock uses MySQL GET_LOCK, which waits up to timeout server-side.
type mysqlNamedLock struct {
	db      *gorm.DB
	name    string
	timeout time.Duration
}

func (l *mysqlNamedLock) WithLock(ctx context.Context, fn func() error) error {
	var got sql.NullInt64
	if err := l.db.WithContext(ctx).Raw("SELECT GET_LOCK(?, ?)", l.name, int(l.timeout.Seconds())).Row().Scan(&got); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return fmt.Errorf("acquire migration lock %q: timed out after %s", l.name, l.timeout)
	}
	defer func() {
		_ = l.db.Exec("SELECT RELEASE_LOCK(?)", l.name).Error
	}()

	return fn()
}

// migrationLockRecord is the table-based lock row for other databases.
type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// fallbackMigrationLock uses INSERT-or-fail on a lock table to ensure one
// holder at a time, deleting rows older than staleAge left by crashed holders.
type fallbackMigrationLock struct {
	db            *gorm.DB
	name          string
	owner         string
	staleAge      time.Duration
	timeout       time.Duration
	retryInterval time.Duration
}

func (l *fallbackMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	deadline := time.Now().Add(l.timeout)
	for {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", l.name, time.Now().UTC().Add(-l.staleAge)).
			Delete(&migrationLockRecord{})

		row := migrationLockRecord{ID: l.name, LockedAt: time.Now().UTC(), LockedBy: l.owner}
		err := l.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			break
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("acquire migration lock %q within %s: %w", l.name, l.timeout, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	defer func() {
		l.db.Where("id = ?", l.name).Delete(&migrationLockRecord{})
	}()

	return fn()
}
