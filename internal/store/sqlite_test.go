package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "nested", "leadrelay.db")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_LeadLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	require.NoError(t, s.CreateLead(ctx, models.Lead{ID: "l1", Phone: "+15551234567", TenantID: "acme"}))
	err := s.CreateLead(ctx, models.Lead{ID: "l2", Phone: "+15551234567"})
	assert.True(t, apperrors.IsDuplicate(err), "expected duplicate, got %v", err)

	lead, err := s.GetLeadByPhone(ctx, "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "l1", lead.ID)
	assert.Equal(t, "acme", lead.TenantID)
	assert.False(t, lead.HasThread())

	stored, err := s.SetLeadThread(ctx, "l1", "thread_1")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", stored)
	stored, err = s.SetLeadThread(ctx, "l1", "thread_2")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", stored, "thread must be set at most once")

	_, err = s.SetLeadThread(ctx, "missing", "t")
	assert.True(t, apperrors.IsNotFound(err))

	none, err := s.GetLeadByPhone(ctx, "+19999999999")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteStore_PromoteLead(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	require.NoError(t, s.AddPendingLead(ctx, models.PendingLead{ID: "p1", Phone: "+15550000010", FirstName: "Ana", TenantID: "acme"}))
	require.NoError(t, s.AddPendingLead(ctx, models.PendingLead{ID: "p2", Phone: "+15550000011", FirstName: "Bo"}))

	p, err := s.GetPendingLeadByPhone(ctx, "+15550000010")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ana", p.FirstName)

	require.NoError(t, s.PromoteLead(ctx, "p1", models.Lead{ID: "l1", Phone: "+15550000010", FirstName: "Ana", TenantID: "acme"}))

	pending, err := s.ListPendingLeads(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p2", pending[0].ID)

	// A clash rolls back and leaves the staged row untouched.
	require.NoError(t, s.AddPendingLead(ctx, models.PendingLead{ID: "p3", Phone: "+15550000010"}))
	err = s.PromoteLead(ctx, "p3", models.Lead{ID: "l9", Phone: "+15550000010"})
	assert.True(t, apperrors.IsDuplicate(err))
	p, err = s.GetPendingLeadByPhone(ctx, "+15550000010")
	require.NoError(t, err)
	assert.NotNil(t, p)

	n, err := s.DeletePendingLeadsByPhone(ctx, "+15550000010")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_TurnsLogsPrompts(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	require.NoError(t, s.CreateLead(ctx, models.Lead{ID: "l1", Phone: "+15550000020"}))

	first, err := s.AppendTurn(ctx, models.Turn{LeadID: "l1", Role: models.RoleUser, Content: "Hi"})
	require.NoError(t, err)
	second, err := s.AppendTurn(ctx, models.Turn{LeadID: "l1", Role: models.RoleAssistant, Content: "Hello!"})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	turns, err := s.ListTurns(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "Hello!", turns[1].Content)

	require.NoError(t, s.AddLogEntry(ctx, models.LogEntry{Phone: "+15550000020", Type: models.LogTypeIncoming, Message: "Hi", LeadID: "l1"}))

	_, err = s.DB().ExecContext(ctx, `INSERT INTO prompts (tenant_id, kind, template) VALUES (?, ?, ?), (?, ?, ?)`,
		"acme", "initial", "Hi {{first_name}}!", "acme", "system", "You are a sales assistant.")
	require.NoError(t, err)

	tpl, err := s.GetPromptTemplate(ctx, "acme", models.PromptKindInitial)
	require.NoError(t, err)
	require.NotNil(t, tpl)
	assert.Equal(t, "Hi Ana!", tpl.Render("Ana"))

	missing, err := s.GetPromptTemplate(ctx, "globex", models.PromptKindInitial)
	require.NoError(t, err)
	assert.Nil(t, missing)

	system, err := s.GetPromptTemplate(ctx, "acme", models.PromptKindSystem)
	require.NoError(t, err)
	require.NotNil(t, system)
	assert.Equal(t, "You are a sales assistant.", system.Template)
}

func TestSQLiteStore_InboundDedup(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	ok, err := s.RecordInbound(ctx, "SM123", "+15550000030")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RecordInbound(ctx, "SM123", "+15550000030")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseInbound(ctx, "SM123"))
	ok, err = s.RecordInbound(ctx, "SM123", "+15550000030")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.MarkInboundProcessed(ctx, "SM123"))
	require.NoError(t, s.ReleaseInbound(ctx, "SM123"))
	ok, err = s.RecordInbound(ctx, "SM123", "+15550000030")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStore_DispatchesSQLite(t *testing.T) {
	s, err := NewStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "dispatch.db")))
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*SQLiteStore)
	assert.True(t, ok, "expected *SQLiteStore, got %T", s)
	assert.NoError(t, s.Ping(context.Background()))
}
