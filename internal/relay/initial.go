package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/metrics"
	"github.com/BTreeMap/LeadRelay/internal/models"
	"github.com/BTreeMap/LeadRelay/internal/reply"
	"github.com/BTreeMap/LeadRelay/internal/validator"
)

// SendInitial promotes the staged lead for req.Phone and sends its first
// message. If a lead already exists for the phone, leftover staged records
// are removed and the existing lead is reported with AlreadyExists set;
// nothing is sent. Without a staged record it returns ErrNotFound.
func (s *Service) SendInitial(ctx context.Context, req models.InitialRequest) (res *models.InitialResult, err error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.FirstName = strings.TrimSpace(req.FirstName)
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	phone, err := s.canonicalPhone(req.Phone)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "relay.SendInitial")
	defer func() { endSpan(span, err) }()

	unlock, err := s.locker.Lock(ctx, "initial:"+phone)
	if err != nil {
		return nil, apperrors.Upstream(err, "acquire initiation lock")
	}
	defer unlock()

	existing, err := s.store.GetLeadByPhone(ctx, phone)
	if err != nil {
		return nil, apperrors.Upstream(err, "lookup lead")
	}
	if existing != nil {
		return s.alreadyExists(ctx, existing)
	}

	pending, err := s.store.GetPendingLeadByPhone(ctx, phone)
	if err != nil {
		return nil, apperrors.Upstream(err, "lookup pending lead")
	}
	if pending == nil {
		return nil, apperrors.NotFound("pending lead for %s", phone)
	}

	lead := models.Lead{
		ID:        s.newID(),
		Phone:     phone,
		FirstName: req.FirstName,
		TenantID:  pending.TenantID,
		CreatedAt: s.now(),
	}
	lead, existing, err = s.promote(ctx, pending.ID, lead)
	if err != nil {
		s.auditError(ctx, phone, nil, err)
		return nil, err
	}
	if existing != nil {
		return s.alreadyExists(ctx, existing)
	}
	span.SetAttributes(attribute.String("lead.id", lead.ID))

	if _, err := s.introduce(ctx, &lead); err != nil {
		slog.Error("Relay SendInitial failed", "lead_id", lead.ID, "phone", phone, "error", err)
		s.auditError(ctx, phone, &lead, err)
		return nil, err
	}
	return &models.InitialResult{LeadID: lead.ID, ThreadID: lead.ThreadID}, nil
}

func (s *Service) alreadyExists(ctx context.Context, lead *models.Lead) (*models.InitialResult, error) {
	removed, err := s.store.DeletePendingLeadsByPhone(ctx, lead.Phone)
	if err != nil {
		return nil, apperrors.Upstream(err, "delete pending lead")
	}
	slog.Info("Relay SendInitial lead already exists", "lead_id", lead.ID, "phone", lead.Phone, "pending_removed", removed)
	return &models.InitialResult{LeadID: lead.ID, ThreadID: lead.ThreadID, AlreadyExists: true}, nil
}

// promote creates a thread when the backend needs one and then moves the
// staged record into the leads table. If the phone was promoted
// concurrently, the stored lead is returned as existing.
func (s *Service) promote(ctx context.Context, pendingID string, lead models.Lead) (models.Lead, *models.Lead, error) {
	if s.gen.NeedsThread() {
		tctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
		threadID, err := s.threads.CreateThread(tctx)
		cancel()
		if err != nil {
			return lead, nil, apperrors.Upstream(err, "create thread")
		}
		lead.ThreadID = threadID
	}

	if err := s.store.PromoteLead(ctx, pendingID, lead); err != nil {
		if !apperrors.IsDuplicate(err) {
			return lead, nil, apperrors.Upstream(err, "promote lead")
		}
		existing, gerr := s.store.GetLeadByPhone(ctx, lead.Phone)
		if gerr != nil || existing == nil {
			return lead, nil, apperrors.Upstream(err, "promote lead")
		}
		if lead.ThreadID != "" {
			metrics.ThreadsDiscardedTotal.Inc()
		}
		return lead, existing, nil
	}

	slog.Info("Relay promoted pending lead", "lead_id", lead.ID, "phone", lead.Phone, "tenant_id", lead.TenantID, "thread_id", lead.ThreadID)
	if lead.ThreadID != "" {
		metrics.ThreadsCreatedTotal.Inc()
		s.audit(ctx, models.LogEntry{
			Phone:    lead.Phone,
			Type:     models.LogTypeThreadCreated,
			Message:  "Thread created",
			ThreadID: lead.ThreadID,
			LeadID:   lead.ID,
		})
	}
	return lead, nil, nil
}

// introduce generates, persists and sends the first message to a promoted lead.
func (s *Service) introduce(ctx context.Context, lead *models.Lead) (string, error) {
	tpl, err := s.store.GetPromptTemplate(ctx, lead.TenantID, models.PromptKindInitial)
	if err != nil {
		return "", apperrors.Upstream(err, "load initial prompt")
	}

	rctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	started := time.Now()
	text, err := s.gen.Initial(rctx, reply.InitialRequest{Lead: *lead, Template: tpl})
	cancel()
	metrics.ObserveReply(s.gen.Name(), "initial", started, err)
	if err != nil {
		return "", apperrors.Upstream(err, "generate initial message")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.Upstream(apperrors.ErrEmptyReply, "generate initial message")
	}

	if _, err := s.store.AppendTurn(ctx, models.Turn{
		LeadID:    lead.ID,
		Role:      models.RoleAssistant,
		Content:   text,
		CreatedAt: s.now(),
	}); err != nil {
		return "", apperrors.Upstream(err, "append initial turn")
	}

	sid, err := s.send(ctx, lead.Phone, text)
	if err != nil {
		return "", err
	}
	s.audit(ctx, models.LogEntry{
		Phone:    lead.Phone,
		Type:     models.LogTypeInitialSent,
		Message:  text,
		ThreadID: lead.ThreadID,
		LeadID:   lead.ID,
	})
	slog.Info("Relay initial message sent", "lead_id", lead.ID, "phone", lead.Phone, "sid", sid)
	return text, nil
}
