package forms

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testingT is satisfied by *testing.T and GinkgoT().
type testingT interface {
	require.TestingT
	Helper()
	Cleanup(func())
}

// setupTestDB opens a private in-memory database. The shared cache and a
// single connection let transactions and concurrent callers see one database.
func setupTestDB(t testingT) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, NewFormStore(db).AutoMigrate())
	return db
}

// testClock is a settable time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// recordingSink keeps every event it receives.
type recordingSink struct {
	events []Event
}

func (s *recordingSink) RecordFormEvent(_ context.Context, ev Event) {
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func newTestService(t testingT, opts ...ServiceOption) (*Service, *FormStore) {
	t.Helper()
	store := NewFormStore(setupTestDB(t))
	return NewService(store, opts...), store
}

const testTenant = "acme"

var inspector = Actor{ID: "u-insp", Name: "Ivy Inspector", Email: "ivy@example.com"}

// inspectionSchema has two sections and one field of most types.
func inspectionSchema() Schema {
	return Schema{
		Version: "1",
		Sections: []Section{
			{Title: "Site", Fields: []Field{
				{Name: "site_name", Label: "Site name", Type: FieldTypeText, Required: true},
				{Name: "visit_date", Label: "Visit date", Type: FieldTypeDate, Required: true},
				{Name: "crew_size", Label: "Crew size", Type: FieldTypeNumber},
				{Name: "contact", Label: "Contact email", Type: FieldTypeEmail},
			}},
			{Title: "Checks", Fields: []Field{
				{Name: "hard_hat", Label: "Hard hat worn", Type: FieldTypeCheckbox, Required: true},
				{Name: "hazards", Label: "Hazards", Type: FieldTypeCheckbox, Options: []string{"fall", "electrical", "chemical"}},
				{Name: "weather", Label: "Weather", Type: FieldTypeSelect, Options: []string{"clear", "rain", "snow"}},
				{Name: "notes", Label: "Notes", Type: FieldTypeTextarea},
				{Name: "supervisor_sign", Label: "Supervisor signature", Type: FieldTypeSignature, Required: true},
			}},
		},
	}
}

// safetyChecklist is the single-field checklist used by lifecycle tests.
func safetyChecklist() Schema {
	return Schema{Sections: []Section{
		{Title: "PPE", Fields: []Field{
			{Name: "hard_hat", Label: "Hard hat", Type: FieldTypeCheckbox, Required: true},
		}},
	}}
}

func createTestForm(t *testing.T, svc *Service, name string, schema Schema) *Form {
	t.Helper()
	form, err := svc.CreateForm(context.Background(), testTenant, inspector, FormInput{Name: name, Type: "inspection", Schema: schema})
	require.NoError(t, err)
	return form
}
