package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

// anyTime matches any time.Time argument.
type anyTime struct{}

func (anyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

func newTestPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newPostgresStoreFromDB(db, time.Second), mock
}

func TestRebindDollar(t *testing.T) {
	got := rebindDollar(`UPDATE leads SET thread_id = ? WHERE id = ? AND thread_id IS NULL`)
	assert.Equal(t, `UPDATE leads SET thread_id = $1 WHERE id = $2 AND thread_id IS NULL`, got)
}

func TestPostgresStore_GetLeadByPhone(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, phone, first_name, thread_id, tenant_id, created_at FROM leads WHERE phone = $1`).
		WithArgs("+15551234567").
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone", "first_name", "thread_id", "tenant_id", "created_at"}).
			AddRow("l1", "+15551234567", "Ana", nil, "acme", created))

	lead, err := s.GetLeadByPhone(context.Background(), "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "l1", lead.ID)
	assert.Equal(t, "", lead.ThreadID)
	assert.Equal(t, "acme", lead.TenantID)
	assert.Equal(t, created, lead.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLeadByPhone_NotFound(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	mock.ExpectQuery(`SELECT id, phone, first_name, thread_id, tenant_id, created_at FROM leads WHERE phone = $1`).
		WithArgs("+15550000000").
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone", "first_name", "thread_id", "tenant_id", "created_at"}))

	lead, err := s.GetLeadByPhone(context.Background(), "+15550000000")
	assert.NoError(t, err)
	assert.Nil(t, lead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateLead_Duplicate(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	mock.ExpectExec(`INSERT INTO leads (id, phone, first_name, thread_id, tenant_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`).
		WithArgs("l2", "+15551234567", "", nil, nil, anyTime{}).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Message: "duplicate key value violates unique constraint"})

	err := s.CreateLead(context.Background(), models.Lead{ID: "l2", Phone: "+15551234567"})
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetLeadThread_ConditionalUpdate(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	mock.ExpectExec(`UPDATE leads SET thread_id = $1 WHERE id = $2 AND thread_id IS NULL`).
		WithArgs("thread_new", "l1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT thread_id FROM leads WHERE id = $1`).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"thread_id"}).AddRow("thread_existing"))

	stored, err := s.SetLeadThread(context.Background(), "l1", "thread_new")
	require.NoError(t, err)
	assert.Equal(t, "thread_existing", stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PromoteLead_Commits(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO leads (id, phone, first_name, thread_id, tenant_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`).
		WithArgs("l1", "+15550000010", "Ana", "thread_1", "acme", anyTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM pending_leads WHERE id = $1 OR phone = $2`).
		WithArgs("p1", "+15550000010").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.PromoteLead(context.Background(), "p1", models.Lead{ID: "l1", Phone: "+15550000010", FirstName: "Ana", ThreadID: "thread_1", TenantID: "acme"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PromoteLead_DuplicateRollsBack(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO leads (id, phone, first_name, thread_id, tenant_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`).
		WithArgs("l1", "+15550000010", "Ana", nil, nil, anyTime{}).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})
	mock.ExpectRollback()

	err := s.PromoteLead(context.Background(), "p1", models.Lead{ID: "l1", Phone: "+15550000010", FirstName: "Ana"})
	assert.True(t, apperrors.IsDuplicate(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendTurn(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	mock.ExpectQuery(`INSERT INTO conversations (lead_id, role, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id`).
		WithArgs("l1", "user", "Hi", anyTime{}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.AppendTurn(context.Background(), models.Turn{LeadID: "l1", Role: models.RoleUser, Content: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordInbound(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	query := `INSERT INTO inbound_dedup (message_id, phone, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`
	mock.ExpectExec(query).WithArgs("SM1", "+1555", anyTime{}).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("SM1", "+1555", anyTime{}).WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := s.RecordInbound(context.Background(), "SM1", "+1555")
	require.NoError(t, err)
	second, err := s.RecordInbound(context.Background(), "SM1", "+1555")
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}
