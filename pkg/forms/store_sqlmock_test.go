package forms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errConnReset = errors.New("connection reset by peer")

// setupMockStore opens a postgres-dialect gorm DB on a sqlmock connection.
func setupMockStore(t *testing.T) (*FormStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewFormStore(db), mock
}

func formRows(id string) *sqlmock.Rows {
	now := time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "tenant_id", "name", "type", "schema", "created_at", "updated_at"}).
		AddRow(id, testTenant, "Safety Checklist", "inspection",
			`{"sections":[{"title":"PPE","fields":[{"name":"hard_hat","label":"Hard hat","type":"checkbox","required":true}]}]}`,
			now, now)
}

func TestFormStore_GetFormWrapsDriverError(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "forms" WHERE`).WillReturnError(errConnReset)

	form, err := store.GetForm(context.Background(), testTenant, "f-1")
	require.Error(t, err)
	assert.Nil(t, form)
	assert.ErrorIs(t, err, errConnReset)
	assert.Contains(t, err.Error(), "get form")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormStore_GetFormNotFoundIsNil(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "forms" WHERE`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	form, err := store.GetForm(context.Background(), testTenant, "f-1")
	require.NoError(t, err)
	assert.Nil(t, form)
}

func TestFormStore_ListSignaturesWrapsDriverError(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "form_signatures" WHERE`).WillReturnError(errConnReset)

	_, err := store.ListSignatures(context.Background(), testTenant, "r-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errConnReset)
	assert.Contains(t, err.Error(), "list signatures")
}

func TestService_StorageFailureIsNotADomainError(t *testing.T) {
	store, mock := setupMockStore(t)
	svc := NewService(store)

	mock.ExpectQuery(`SELECT \* FROM "forms" WHERE`).WillReturnRows(formRows("f-1"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "form_responses"`).WillReturnError(errConnReset)

	stats, err := svc.ResponseStats(context.Background(), testTenant, "f-1")
	require.Error(t, err)
	assert.Nil(t, stats)
	assert.ErrorIs(t, err, errConnReset)
	assert.Empty(t, AsFieldErrors(err))
	assert.Equal(t, "internal", KindCode(err))
	assert.Contains(t, err.Error(), "count responses")
	assert.NoError(t, mock.ExpectationsWereMet())
}
