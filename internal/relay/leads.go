package relay

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/metrics"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

// ResolveLead returns the lead for msg.From, creating it when none exists.
// msg.From must already be canonical. The tenant resolver is only consulted
// for a brand-new lead. A duplicate-key failure on insert means a concurrent
// request created the lead first; it is re-read instead of failing.
func (s *Service) ResolveLead(ctx context.Context, msg models.InboundMessage) (lead *models.Lead, err error) {
	ctx, span := tracer.Start(ctx, "relay.ResolveLead")
	defer func() { endSpan(span, err) }()

	lead, err = s.store.GetLeadByPhone(ctx, msg.From)
	if err != nil {
		return nil, apperrors.Upstream(err, "lookup lead")
	}
	if lead != nil {
		span.SetAttributes(attribute.Bool("lead.created", false))
		return lead, nil
	}

	tenant, err := s.tenants.ResolveTenant(ctx, msg)
	if err != nil {
		slog.Warn("Relay ResolveLead tenant unresolved", "phone", msg.From, "to", msg.To, "error", err)
		return nil, err
	}
	created := models.Lead{
		ID:        s.newID(),
		Phone:     msg.From,
		TenantID:  tenant,
		CreatedAt: s.now(),
	}
	if err = s.store.CreateLead(ctx, created); err != nil {
		if !apperrors.IsDuplicate(err) {
			return nil, apperrors.Upstream(err, "create lead")
		}
		slog.Debug("Relay ResolveLead lost insert race, re-reading", "phone", msg.From)
		lead, err = s.store.GetLeadByPhone(ctx, msg.From)
		if err != nil {
			return nil, apperrors.Upstream(err, "lookup lead after duplicate")
		}
		if lead == nil {
			return nil, apperrors.Upstream(fmt.Errorf("lead for %s rejected as duplicate but not found", msg.From), "create lead")
		}
		return lead, nil
	}
	span.SetAttributes(attribute.Bool("lead.created", true))
	slog.Info("Relay ResolveLead created lead", "lead_id", created.ID, "phone", created.Phone, "tenant_id", tenant)
	return &created, nil
}

// EnsureThread returns lead with a thread attached, creating one on first
// use. Creation runs under a per-lead lock and is persisted with a
// conditional update, so a lead keeps the first thread ever stored for it.
// A thread created by a losing racer is discarded.
func (s *Service) EnsureThread(ctx context.Context, lead *models.Lead) (out *models.Lead, err error) {
	if lead.HasThread() {
		return lead, nil
	}
	ctx, span := tracer.Start(ctx, "relay.EnsureThread")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("lead.id", lead.ID))

	unlock, err := s.locker.Lock(ctx, "thread:"+lead.ID)
	if err != nil {
		return nil, apperrors.Upstream(err, "acquire thread lock")
	}
	defer unlock()

	current, err := s.store.GetLeadByPhone(ctx, lead.Phone)
	if err != nil {
		return nil, apperrors.Upstream(err, "reload lead")
	}
	if current.HasThread() {
		return current, nil
	}

	tctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	threadID, err := s.threads.CreateThread(tctx)
	cancel()
	if err != nil {
		return nil, apperrors.Upstream(err, "create thread")
	}
	stored, err := s.store.SetLeadThread(ctx, lead.ID, threadID)
	if err != nil {
		return nil, apperrors.Upstream(err, "store thread")
	}

	updated := *lead
	updated.ThreadID = stored
	if stored != threadID {
		metrics.ThreadsDiscardedTotal.Inc()
		slog.Warn("Relay EnsureThread discarded thread, lead already has one", "lead_id", lead.ID, "discarded", threadID, "thread_id", stored)
		return &updated, nil
	}
	metrics.ThreadsCreatedTotal.Inc()
	slog.Info("Relay EnsureThread created thread", "lead_id", lead.ID, "thread_id", stored)
	s.audit(ctx, models.LogEntry{
		Phone:    lead.Phone,
		Type:     models.LogTypeThreadCreated,
		Message:  "Thread created",
		ThreadID: stored,
		LeadID:   lead.ID,
	})
	return &updated, nil
}
