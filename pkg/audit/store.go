package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fieldworks/backoffice/internal/pagination"
)

// ErrInvalidPageToken is returned by List for a page token it did not issue.
var ErrInvalidPageToken = pagination.ErrInvalidPageToken

// Store provides append-only operations for audit event records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&EventRecord{})
}

// ListFilter narrows an event listing. Empty fields match everything.
type ListFilter struct {
	Actor        string
	EventType    string
	ResourceType string
	Action       string
}

// Append creates a new immutable audit event record.
func (s *Store) Append(ctx context.Context, event *EventRecord) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Get returns one event of the tenant. Returns nil if it does not exist.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*EventRecord, error) {
	var rec EventRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ? AND tenant_id = ?", id, tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return &rec, nil
}

// List returns paginated audit events of a tenant, newest first.
func (s *Store) List(ctx context.Context, tenantID string, filter ListFilter, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	pageSize = pagination.Size(pageSize)

	base := s.db.WithContext(ctx).Model(&EventRecord{}).Where("tenant_id = ?", tenantID)
	if filter.Actor != "" {
		base = base.Where("actor = ?", filter.Actor)
	}
	if filter.EventType != "" {
		base = base.Where("event_type = ?", filter.EventType)
	}
	if filter.ResourceType != "" {
		base = base.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.Action != "" {
		base = base.Where("action = ?", filter.Action)
	}

	var totalSize int64
	if err := base.Session(&gorm.Session{}).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query, err := pagination.Apply(base.Session(&gorm.Session{}), "created_at", pageToken)
	if err != nil {
		return nil, "", 0, err
	}

	var records []EventRecord
	if err := query.Limit(pageSize + 1).Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	records, nextToken := pagination.Next(records, pageSize, func(r EventRecord) pagination.Cursor {
		return pagination.Cursor{At: r.CreatedAt, ID: r.ID}
	})
	return records, nextToken, int(totalSize), nil
}

// DeleteOlderThan deletes audit events created before the given cutoff time.
// Returns the number of deleted records.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
