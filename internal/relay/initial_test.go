package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
	"github.com/BTreeMap/LeadRelay/internal/reply"
	"github.com/BTreeMap/LeadRelay/internal/testutil"
)

func TestSendInitial_NoPendingLead(t *testing.T) {
	h := newHarness(t, &testutil.FakeGenerator{Thread: true, InitialText: "Hi"})

	_, err := h.svc.SendInitial(context.Background(), models.InitialRequest{Phone: "+15551234567", FirstName: "Ana"})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 404, apperrors.HTTPStatus(err))
	assert.Equal(t, 0, h.threads.Calls())
	assert.Empty(t, h.sms.Sent())
}

func TestSendInitial_Validation(t *testing.T) {
	h := newHarness(t, &testutil.FakeGenerator{})

	_, err := h.svc.SendInitial(context.Background(), models.InitialRequest{Phone: "+15551234567"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "first_name")
}

func TestSendInitial_PromotesAndIsIdempotent(t *testing.T) {
	h := newHarness(t, &testutil.FakeGenerator{Thread: true, InitialText: "Hi Ana, thanks for reaching out!"})
	ctx := context.Background()
	pending := testutil.NewPendingLead("acme")
	require.NoError(t, h.store.AddPendingLead(ctx, pending))

	res, err := h.svc.SendInitial(ctx, models.InitialRequest{Phone: pending.Phone, FirstName: "Ana"})
	require.NoError(t, err)
	assert.False(t, res.AlreadyExists)
	assert.NotEmpty(t, res.LeadID)
	assert.Equal(t, "thread_1", res.ThreadID)

	lead, err := h.store.GetLeadByPhone(ctx, pending.Phone)
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "Ana", lead.FirstName)
	assert.Equal(t, "acme", lead.TenantID)
	left, err := h.store.GetPendingLeadByPhone(ctx, pending.Phone)
	require.NoError(t, err)
	assert.Nil(t, left, "phone must not remain staged after promotion")

	turns := h.turns(t, lead.ID)
	require.Len(t, turns, 1)
	assert.Equal(t, models.RoleAssistant, turns[0].Role)
	require.Len(t, h.sms.Sent(), 1)

	again, err := h.svc.SendInitial(ctx, models.InitialRequest{Phone: pending.Phone, FirstName: "Ana"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyExists)
	assert.Equal(t, res.LeadID, again.LeadID)
	assert.Len(t, h.sms.Sent(), 1, "second call must not resend")
	assert.Len(t, h.store.Leads(), 1)
	assert.Equal(t, 1, h.threads.Calls())

	types := logTypes(h.store.LogEntries())
	assert.Contains(t, types, models.LogTypeThreadCreated)
	assert.Contains(t, types, models.LogTypeInitialSent)
}

func TestSendInitial_ExistingLeadClearsPending(t *testing.T) {
	h := newHarness(t, &testutil.FakeGenerator{InitialText: "Hi"})
	ctx := context.Background()
	lead := testutil.NewLead("")
	require.NoError(t, h.store.CreateLead(ctx, lead))
	require.NoError(t, h.store.AddPendingLead(ctx, models.PendingLead{ID: "p1", Phone: lead.Phone, FirstName: lead.FirstName}))

	res, err := h.svc.SendInitial(ctx, models.InitialRequest{Phone: lead.Phone, FirstName: lead.FirstName})
	require.NoError(t, err)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, lead.ID, res.LeadID)
	left, _ := h.store.GetPendingLeadByPhone(ctx, lead.Phone)
	assert.Nil(t, left)
	assert.Empty(t, h.sms.Sent())
}

func TestSweepPending_PartialFailure(t *testing.T) {
	gen := &testutil.FakeGenerator{
		InitialFunc: func(req reply.InitialRequest) (string, error) {
			if req.Template == nil {
				return "", errors.New("no initial prompt")
			}
			return req.Template.Render(req.Lead.FirstName), nil
		},
	}
	h := newHarness(t, gen, WithSweepConcurrency(2))
	ctx := context.Background()
	h.store.PutPromptTemplate(models.PromptTemplate{TenantID: "acme", Kind: models.PromptKindInitial, Template: "Hey {{first_name}}, still looking for a quote?"})

	existing := testutil.NewLead("acme")
	existing.FirstName = "Old"
	require.NoError(t, h.store.CreateLead(ctx, existing))

	first := testutil.NewPendingLead("acme")
	broken := testutil.NewPendingLead("globex")
	repeat := models.PendingLead{ID: "p-repeat", Phone: existing.Phone, FirstName: "New", TenantID: "acme"}
	last := testutil.NewPendingLead("acme")
	for _, p := range []models.PendingLead{first, broken, repeat, last} {
		require.NoError(t, h.store.AddPendingLead(ctx, p))
	}

	res, err := h.svc.SweepPending(ctx)
	require.NoError(t, err)

	require.Len(t, res.Inserted, 2)
	assert.Equal(t, first.Phone, res.Inserted[0].Phone)
	assert.Equal(t, last.Phone, res.Inserted[1].Phone)
	require.Len(t, res.NotInserted, 1)
	assert.Equal(t, existing.ID, res.NotInserted[0].LeadID)
	assert.Equal(t, []string{"first_name"}, res.NotInserted[0].Dropped)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, broken.Phone, res.Failed[0].Phone)
	assert.Contains(t, res.Failed[0].Reason, "no initial prompt")

	sent := h.sms.Sent()
	require.Len(t, sent, 2)
	for _, m := range sent {
		assert.Contains(t, m.Body, "still looking for a quote?")
		assert.NotEqual(t, existing.Phone, m.To)
	}

	remaining, err := h.store.ListPendingLeads(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	unchanged, err := h.store.GetLeadByPhone(ctx, existing.Phone)
	require.NoError(t, err)
	assert.Equal(t, "Old", unchanged.FirstName)
	assert.Contains(t, logTypes(h.store.LogEntries()), models.LogTypePendingDropped)
}

func TestSweepPending_DuplicateStagedPhone(t *testing.T) {
	h := newHarness(t, &testutil.FakeGenerator{Thread: true, InitialText: "Hello"}, WithSweepConcurrency(4))
	ctx := context.Background()
	p := testutil.NewPendingLead("")
	dup := p
	dup.ID = "dup"
	require.NoError(t, h.store.AddPendingLead(ctx, p))
	require.NoError(t, h.store.AddPendingLead(ctx, dup))

	res, err := h.svc.SweepPending(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Inserted, 1)
	assert.Len(t, res.NotInserted, 1)
	assert.Len(t, h.sms.Sent(), 1)
	assert.Len(t, h.store.Leads(), 1)
}

func TestSweepPending_Empty(t *testing.T) {
	h := newHarness(t, &testutil.FakeGenerator{})

	res, err := h.svc.SweepPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Inserted)
	assert.NotNil(t, res.Inserted)
	assert.Empty(t, res.NotInserted)
	assert.Empty(t, res.Failed)
}
