package forms

import (
	"time"

	"gorm.io/datatypes"
)

// Form is the GORM model for a tenant's form definition.
type Form struct {
	ID        string                     `gorm:"primaryKey;column:id;type:varchar(36)"`
	TenantID  string                     `gorm:"column:tenant_id;index:idx_form_tenant_type,priority:1;not null"`
	Name      string                     `gorm:"column:name;not null"`
	Type      string                     `gorm:"column:type;index:idx_form_tenant_type,priority:2"`
	Schema    datatypes.JSONType[Schema] `gorm:"column:schema;not null"`
	CreatedAt time.Time                  `gorm:"column:created_at;not null"`
	UpdatedAt time.Time                  `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (Form) TableName() string { return "forms" }

// FormResponse is one user's draft or submitted answers to a form.
type FormResponse struct {
	ID           string            `gorm:"primaryKey;column:id;type:varchar(36)"`
	FormID       string            `gorm:"column:form_id;index:idx_response_form_created,priority:1;not null"`
	TenantID     string            `gorm:"column:tenant_id;index:idx_response_tenant;not null"`
	UserID       string            `gorm:"column:user_id;index:idx_response_user;not null"`
	JobID        *string           `gorm:"column:job_id;index:idx_response_job"`
	ResponseData datatypes.JSONMap `gorm:"column:response_data"`
	Submitted    bool              `gorm:"column:submitted;not null"`
	SubmittedAt  *time.Time        `gorm:"column:submitted_at"`
	CreatedAt    time.Time         `gorm:"column:created_at;index:idx_response_form_created,priority:2;not null"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (FormResponse) TableName() string { return "form_responses" }

// Signature records one completed signing of a response. Rows are never updated.
type Signature struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	ResponseID string    `gorm:"column:response_id;index:idx_signature_response;not null"`
	TenantID   string    `gorm:"column:tenant_id;not null"`
	FieldName  string    `gorm:"column:field_name"`
	SignerName string    `gorm:"column:signer_name;not null"`
	SignerRole string    `gorm:"column:signer_role"`
	ImageRef   string    `gorm:"column:image_ref;not null"`
	SignedAt   time.Time `gorm:"column:signed_at;not null"`
}

// TableName returns the GORM table name.
func (Signature) TableName() string { return "form_signatures" }

// UserProfile caches the display name and contact address of a user as
// last seen by the identity provider. Export reads it for its user columns.
type UserProfile struct {
	TenantID  string    `gorm:"primaryKey;column:tenant_id;type:varchar(64)"`
	ID        string    `gorm:"primaryKey;column:id;type:varchar(255)"`
	Name      string    `gorm:"column:name"`
	Email     string    `gorm:"column:email"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (UserProfile) TableName() string { return "users" }

// AllModels lists every model owned by this package, for migrations.
func AllModels() []any {
	return []any{&Form{}, &FormResponse{}, &Signature{}, &UserProfile{}}
}
