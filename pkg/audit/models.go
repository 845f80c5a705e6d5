package audit

import (
	"time"

	"gorm.io/datatypes"
)

// Event types.
const (
	// EventTypeHTTP marks a record written by AuditMiddleware for a mutating request.
	EventTypeHTTP = "http"
	// EventTypeDomain marks a record written by EventSink for a committed form engine write.
	EventTypeDomain = "domain"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// EventRecord is an immutable audit log entry.
type EventRecord struct {
	ID            string                     `gorm:"primaryKey;column:id;type:varchar(36)"`
	TenantID      string                     `gorm:"column:tenant_id;type:varchar(64);index:idx_audit_tenant_time,priority:1;not null"`
	CorrelationID string                     `gorm:"column:correlation_id;index"`
	EventType     string                     `gorm:"column:event_type;type:varchar(16);not null"`
	Actor         string                     `gorm:"column:actor;index:idx_audit_actor_time,priority:1;not null"`
	RequestID     string                     `gorm:"column:request_id;index"`
	ResourceType  string                     `gorm:"column:resource_type"`
	ResourceIDs   datatypes.JSONSlice[string] `gorm:"column:resource_ids"`
	Action        string                     `gorm:"column:action;not null"`
	Outcome       string                     `gorm:"column:outcome;not null"`
	StatusCode    int                        `gorm:"column:status_code"`
	EventMetadata datatypes.JSONMap          `gorm:"column:metadata"`
	CreatedAt     time.Time                  `gorm:"column:created_at;index:idx_audit_tenant_time,priority:2;index:idx_audit_actor_time,priority:2"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }
