package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/metrics"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

type sweepClass int

const (
	classFailed sweepClass = iota
	classInserted
	classNotInserted
)

type sweepOutcome struct {
	class sweepClass
	lead  models.SweepLead
}

// SweepPending promotes every staged lead and sends its first message.
// Leads are processed concurrently on a bounded pool; a failure for one lead
// is recorded in Failed and never stops the others. Results keep the order
// of the staged records. Only a failure to list staged leads fails the sweep.
func (s *Service) SweepPending(ctx context.Context) (res *models.SweepResult, err error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "relay.SweepPending")
	defer func() { endSpan(span, err) }()

	pendings, err := s.store.ListPendingLeads(ctx)
	if err != nil {
		return nil, apperrors.Upstream(err, "list pending leads")
	}
	res = models.NewSweepResult()
	span.SetAttributes(attribute.Int("sweep.pending", len(pendings)))
	if len(pendings) == 0 {
		slog.Debug("Relay SweepPending no pending leads")
		return res, nil
	}

	outcomes := make([]sweepOutcome, len(pendings))
	pool, err := ants.NewPool(s.sweepConcurrency, ants.WithPanicHandler(func(p interface{}) {
		slog.Error("Relay SweepPending worker panic", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create sweep pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, p := range pendings {
		i, p := i, p
		outcomes[i] = failedOutcome(p, "", "worker did not complete")
		wg.Add(1)
		if serr := pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = s.sweepOne(ctx, p)
		}); serr != nil {
			wg.Done()
			outcomes[i] = failedOutcome(p, "", serr.Error())
		}
	}
	wg.Wait()

	for _, o := range outcomes {
		switch o.class {
		case classInserted:
			res.Inserted = append(res.Inserted, o.lead)
			metrics.SweepLeadsTotal.WithLabelValues(metrics.SweepInserted).Inc()
		case classNotInserted:
			res.NotInserted = append(res.NotInserted, o.lead)
			metrics.SweepLeadsTotal.WithLabelValues(metrics.SweepNotInserted).Inc()
		default:
			res.Failed = append(res.Failed, o.lead)
			metrics.SweepLeadsTotal.WithLabelValues(metrics.SweepFailed).Inc()
		}
	}
	slog.Info("Relay SweepPending completed", "pending", len(pendings), "inserted", len(res.Inserted), "not_inserted", len(res.NotInserted), "failed", len(res.Failed))
	return res, nil
}

// sweepOne classifies and processes one staged lead.
func (s *Service) sweepOne(ctx context.Context, p models.PendingLead) sweepOutcome {
	phone, err := s.canonicalPhone(p.Phone)
	if err != nil {
		slog.Warn("Relay SweepPending invalid phone", "pending_id", p.ID, "phone", p.Phone, "error", err)
		return failedOutcome(p, "", err.Error())
	}

	unlock, err := s.locker.Lock(ctx, "initial:"+phone)
	if err != nil {
		return failedOutcome(p, "", err.Error())
	}
	defer unlock()

	existing, err := s.store.GetLeadByPhone(ctx, phone)
	if err != nil {
		return failedOutcome(p, "", apperrors.Upstream(err, "lookup lead").Error())
	}
	if existing != nil {
		return s.dropPending(ctx, p, existing)
	}

	lead := models.Lead{
		ID:        s.newID(),
		Phone:     phone,
		FirstName: strings.TrimSpace(p.FirstName),
		TenantID:  p.TenantID,
		CreatedAt: s.now(),
	}
	lead, existing, err = s.promote(ctx, p.ID, lead)
	if err != nil {
		slog.Error("Relay SweepPending promote failed", "pending_id", p.ID, "phone", phone, "error", err)
		s.auditError(ctx, phone, nil, err)
		return failedOutcome(p, "", err.Error())
	}
	if existing != nil {
		return s.dropPending(ctx, p, existing)
	}

	if _, err := s.introduce(ctx, &lead); err != nil {
		slog.Error("Relay SweepPending initial message failed", "lead_id", lead.ID, "phone", phone, "error", err)
		s.auditError(ctx, phone, &lead, err)
		return failedOutcome(p, lead.ID, err.Error())
	}
	return sweepOutcome{class: classInserted, lead: models.SweepLead{
		Phone:     lead.Phone,
		FirstName: lead.FirstName,
		LeadID:    lead.ID,
	}}
}

// dropPending removes staged records for a phone that already has a lead.
// Nothing is sent. Attributes the staged record would have changed are
// reported as dropped and audited.
func (s *Service) dropPending(ctx context.Context, p models.PendingLead, existing *models.Lead) sweepOutcome {
	if _, err := s.store.DeletePendingLeadsByPhone(ctx, existing.Phone); err != nil {
		return failedOutcome(p, existing.ID, apperrors.Upstream(err, "delete pending lead").Error())
	}
	if p.Phone != existing.Phone {
		if err := s.store.DeletePendingLead(ctx, p.ID); err != nil {
			return failedOutcome(p, existing.ID, apperrors.Upstream(err, "delete pending lead").Error())
		}
	}

	dropped := droppedFields(p, existing)
	if len(dropped) > 0 {
		slog.Warn("Relay SweepPending dropped pending attributes for existing lead", "lead_id", existing.ID, "phone", existing.Phone, "fields", dropped)
		s.audit(ctx, models.LogEntry{
			Phone:    existing.Phone,
			Type:     models.LogTypePendingDropped,
			Message:  fmt.Sprintf("Pending lead %s not applied to existing lead, dropped fields: %s", p.ID, strings.Join(dropped, ", ")),
			ThreadID: existing.ThreadID,
			LeadID:   existing.ID,
		})
	}
	return sweepOutcome{class: classNotInserted, lead: models.SweepLead{
		Phone:     existing.Phone,
		FirstName: p.FirstName,
		LeadID:    existing.ID,
		Dropped:   dropped,
		Reason:    "lead already exists",
	}}
}

// droppedFields lists staged attributes that differ from the stored lead.
func droppedFields(p models.PendingLead, lead *models.Lead) []string {
	var out []string
	if name := strings.TrimSpace(p.FirstName); name != "" && name != lead.FirstName {
		out = append(out, "first_name")
	}
	if p.TenantID != "" && p.TenantID != lead.TenantID {
		out = append(out, "tenant_id")
	}
	return out
}

func failedOutcome(p models.PendingLead, leadID, reason string) sweepOutcome {
	return sweepOutcome{class: classFailed, lead: models.SweepLead{
		Phone:     p.Phone,
		FirstName: p.FirstName,
		LeadID:    leadID,
		Reason:    reason,
	}}
}
