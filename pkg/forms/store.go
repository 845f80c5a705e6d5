package forms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldworks/backoffice/internal/pagination"
)

// errDraftGone aborts a draft update transaction when the conditional
// UPDATE matched no row.
var errDraftGone = errors.New("draft no longer updatable")

// FormStore provides database operations for forms, responses and signatures.
// Every query is scoped by tenant.
type FormStore struct {
	db *gorm.DB
}

// NewFormStore creates a new FormStore.
func NewFormStore(db *gorm.DB) *FormStore {
	return &FormStore{db: db}
}

// AutoMigrate creates or updates the form engine tables.
func (s *FormStore) AutoMigrate() error {
	return s.db.AutoMigrate(AllModels()...)
}

// FormListFilter defines filters for listing forms.
type FormListFilter struct {
	Type string
	Name string
}

// ResponseListFilter defines filters for listing responses.
type ResponseListFilter struct {
	FormID    string
	UserID    string
	JobID     string
	Submitted *bool
}

// CreateForm inserts a new form.
func (s *FormStore) CreateForm(ctx context.Context, form *Form) error {
	if err := s.db.WithContext(ctx).Create(form).Error; err != nil {
		return fmt.Errorf("create form: %w", err)
	}
	return nil
}

// GetForm retrieves a form by ID. Returns nil if it does not exist under the tenant.
func (s *FormStore) GetForm(ctx context.Context, tenantID, formID string) (*Form, error) {
	var form Form
	err := s.db.WithContext(ctx).First(&form, "id = ? AND tenant_id = ?", formID, tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get form: %w", err)
	}
	return &form, nil
}

// ListForms returns paginated forms, newest first.
func (s *FormStore) ListForms(ctx context.Context, tenantID string, filter FormListFilter, pageSize int, pageToken string) ([]Form, string, int, error) {
	pageSize = pagination.Size(pageSize)

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&Form{}).Where("tenant_id = ?", tenantID)
		if filter.Type != "" {
			q = q.Where("type = ?", filter.Type)
		}
		if filter.Name != "" {
			q = q.Where("name = ?", filter.Name)
		}
		return q
	}

	db := s.db.WithContext(ctx)
	var totalSize int64
	if err := buildQuery(db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count forms: %w", err)
	}

	query, err := pagination.Apply(buildQuery(db), "created_at", pageToken)
	if err != nil {
		return nil, "", 0, err
	}

	var records []Form
	if err := query.Limit(pageSize + 1).Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list forms: %w", err)
	}

	records, nextToken := pagination.Next(records, pageSize, func(r Form) pagination.Cursor {
		return pagination.Cursor{At: r.CreatedAt, ID: r.ID}
	})
	return records, nextToken, int(totalSize), nil
}

// UpdateForm applies updates to a form. Returns false if the form does not
// exist under the tenant.
func (s *FormStore) UpdateForm(ctx context.Context, tenantID, formID string, updates map[string]any) (bool, error) {
	result := s.db.WithContext(ctx).Model(&Form{}).
		Where("id = ? AND tenant_id = ?", formID, tenantID).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("update form: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteForm removes a form that has no responses.
func (s *FormStore) DeleteForm(ctx context.Context, tenantID, formID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&FormResponse{}).
			Where("form_id = ? AND tenant_id = ?", formID, tenantID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("count form responses: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("form %q has %d responses: %w", formID, count, ErrFormHasResponses)
		}

		result := tx.Where("id = ? AND tenant_id = ?", formID, tenantID).Delete(&Form{})
		if result.Error != nil {
			return fmt.Errorf("delete form: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return notFound("form", formID)
		}
		return nil
	})
}

// CreateResponse inserts a response and its signatures in one transaction.
// A non-nil profile is upserted in the same transaction.
func (s *FormStore) CreateResponse(ctx context.Context, resp *FormResponse, signatures []Signature, profile *UserProfile) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if profile != nil {
			if err := upsertUserProfile(tx, profile); err != nil {
				return err
			}
		}
		if err := tx.Create(resp).Error; err != nil {
			return fmt.Errorf("create response: %w", err)
		}
		if len(signatures) > 0 {
			if err := tx.Create(&signatures).Error; err != nil {
				return fmt.Errorf("create signatures: %w", err)
			}
		}
		return nil
	})
}

// GetResponse retrieves a response by ID. Returns nil if it does not exist under the tenant.
func (s *FormStore) GetResponse(ctx context.Context, tenantID, responseID string) (*FormResponse, error) {
	var resp FormResponse
	err := s.db.WithContext(ctx).First(&resp, "id = ? AND tenant_id = ?", responseID, tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get response: %w", err)
	}
	return &resp, nil
}

// UpdateDraft applies updates only while the response is still a draft,
// inserting signatures in the same transaction. The submitted = false
// predicate makes the draft-to-submitted transition a single atomic write:
// of two concurrent submits, one matches the row and the other matches none.
// Returns false when no draft row matched.
func (s *FormStore) UpdateDraft(ctx context.Context, tenantID, responseID string, updates map[string]any, signatures []Signature) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&FormResponse{}).
			Where("id = ? AND tenant_id = ? AND submitted = ?", responseID, tenantID, false).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("update response: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errDraftGone
		}
		if len(signatures) > 0 {
			if err := tx.Create(&signatures).Error; err != nil {
				return fmt.Errorf("create signatures: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, errDraftGone) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListResponses returns paginated responses, newest first.
func (s *FormStore) ListResponses(ctx context.Context, tenantID string, filter ResponseListFilter, pageSize int, pageToken string) ([]FormResponse, string, int, error) {
	pageSize = pagination.Size(pageSize)

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&FormResponse{}).Where("tenant_id = ?", tenantID)
		if filter.FormID != "" {
			q = q.Where("form_id = ?", filter.FormID)
		}
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.JobID != "" {
			q = q.Where("job_id = ?", filter.JobID)
		}
		if filter.Submitted != nil {
			q = q.Where("submitted = ?", *filter.Submitted)
		}
		return q
	}

	db := s.db.WithContext(ctx)
	var totalSize int64
	if err := buildQuery(db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count responses: %w", err)
	}

	query, err := pagination.Apply(buildQuery(db), "created_at", pageToken)
	if err != nil {
		return nil, "", 0, err
	}

	var records []FormResponse
	if err := query.Limit(pageSize + 1).Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list responses: %w", err)
	}

	records, nextToken := pagination.Next(records, pageSize, func(r FormResponse) pagination.Cursor {
		return pagination.Cursor{At: r.CreatedAt, ID: r.ID}
	})
	return records, nextToken, int(totalSize), nil
}

// DeleteResponse removes a response together with its signatures.
// Returns false if the response does not exist under the tenant.
func (s *FormStore) DeleteResponse(ctx context.Context, tenantID, responseID string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("response_id = ? AND tenant_id = ?", responseID, tenantID).
			Delete(&Signature{}).Error; err != nil {
			return fmt.Errorf("delete signatures: %w", err)
		}
		result := tx.Where("id = ? AND tenant_id = ?", responseID, tenantID).Delete(&FormResponse{})
		if result.Error != nil {
			return fmt.Errorf("delete response: %w", result.Error)
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	return deleted, err
}

// CreateSignature appends one signature row.
func (s *FormStore) CreateSignature(ctx context.Context, sig *Signature) error {
	if err := s.db.WithContext(ctx).Create(sig).Error; err != nil {
		return fmt.Errorf("create signature: %w", err)
	}
	return nil
}

// ListSignatures returns the signatures of a response in signing order.
func (s *FormStore) ListSignatures(ctx context.Context, tenantID, responseID string) ([]Signature, error) {
	var sigs []Signature
	if err := s.db.WithContext(ctx).
		Where("response_id = ? AND tenant_id = ?", responseID, tenantID).
		Order("signed_at ASC").Order("id ASC").
		Find(&sigs).Error; err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	return sigs, nil
}

// CountResponses counts a form's responses. A non-nil submitted filters by
// state; a non-zero since keeps responses created at or after it.
func (s *FormStore) CountResponses(ctx context.Context, tenantID, formID string, submitted *bool, since time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&FormResponse{}).
		Where("form_id = ? AND tenant_id = ?", formID, tenantID)
	if submitted != nil {
		q = q.Where("submitted = ?", *submitted)
	}
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return n, nil
}

// ResponseStamp is the projection the trend aggregation reads.
type ResponseStamp struct {
	CreatedAt time.Time
	Submitted bool
}

// ResponseStampsSince returns creation time and state of every response of
// a form created at or after since.
func (s *FormStore) ResponseStampsSince(ctx context.Context, tenantID, formID string, since time.Time) ([]ResponseStamp, error) {
	var rows []ResponseStamp
	if err := s.db.WithContext(ctx).Model(&FormResponse{}).
		Select("created_at", "submitted").
		Where("form_id = ? AND tenant_id = ? AND created_at >= ?", formID, tenantID, since).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list response timestamps: %w", err)
	}
	return rows, nil
}

// SubmittedResponses returns a form's submitted responses, newest first.
// limit <= 0 means no limit.
func (s *FormStore) SubmittedResponses(ctx context.Context, tenantID, formID string, limit int) ([]FormResponse, error) {
	q := s.db.WithContext(ctx).
		Where("form_id = ? AND tenant_id = ? AND submitted = ?", formID, tenantID, true).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []FormResponse
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list submitted responses: %w", err)
	}
	return records, nil
}

// UpsertUserProfile records the latest known name and email of a user.
func (s *FormStore) UpsertUserProfile(ctx context.Context, profile *UserProfile) error {
	return upsertUserProfile(s.db.WithContext(ctx), profile)
}

func upsertUserProfile(db *gorm.DB, profile *UserProfile) error {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "updated_at"}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}
	return nil
}

// UserProfiles returns the known profiles for the given user IDs, keyed by ID.
func (s *FormStore) UserProfiles(ctx context.Context, tenantID string, userIDs []string) (map[string]UserProfile, error) {
	out := make(map[string]UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []UserProfile
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, userIDs).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list user profiles: %w", err)
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}
