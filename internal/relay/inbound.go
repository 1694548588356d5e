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

// HandleInbound processes one inbound SMS: resolve the lead, ensure a thread
// for thread-based backends, append the user turn, generate a reply, append
// the assistant turn and send it back to the sender.
//
// Validation failures return before any external call. A redelivered
// MessageSID that was already processed is acknowledged without effect.
// Every other failure is audited best-effort and returned classified.
func (s *Service) HandleInbound(ctx context.Context, msg models.InboundMessage) (err error) {
	msg.From = strings.TrimSpace(msg.From)
	msg.Body = strings.TrimSpace(msg.Body)
	msg.To = strings.TrimSpace(msg.To)
	if err := validator.Validate(msg); err != nil {
		metrics.InboundMessagesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return err
	}
	if err := s.ready(); err != nil {
		metrics.InboundMessagesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		slog.Error("Relay HandleInbound not configured", "error", err)
		return err
	}
	phone, err := s.canonicalPhone(msg.From)
	if err != nil {
		metrics.InboundMessagesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return err
	}
	msg.From = phone

	ctx, span := tracer.Start(ctx, "relay.HandleInbound")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("message.sid", msg.MessageSID))

	if msg.MessageSID != "" {
		claimed, err := s.store.RecordInbound(ctx, msg.MessageSID, phone)
		if err != nil {
			metrics.InboundMessagesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
			return apperrors.Upstream(err, "record inbound")
		}
		if !claimed {
			metrics.InboundMessagesTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			slog.Info("Relay HandleInbound duplicate delivery ignored", "phone", phone, "message_sid", msg.MessageSID)
			return nil
		}
	}

	lead, err := s.converse(ctx, msg)
	if err != nil {
		metrics.InboundMessagesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		slog.Error("Relay HandleInbound failed", "phone", phone, "error", err)
		s.auditError(ctx, phone, lead, err)
		if msg.MessageSID != "" {
			if rerr := s.store.ReleaseInbound(context.WithoutCancel(ctx), msg.MessageSID); rerr != nil {
				slog.Warn("Relay HandleInbound release dedup claim failed", "message_sid", msg.MessageSID, "error", rerr)
			}
		}
		return err
	}
	if msg.MessageSID != "" {
		if err := s.store.MarkInboundProcessed(ctx, msg.MessageSID); err != nil {
			slog.Warn("Relay HandleInbound mark processed failed", "message_sid", msg.MessageSID, "error", err)
		}
	}
	metrics.InboundMessagesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return nil
}

// converse runs the lead, turn and reply sequence. The returned lead is the
// last known state and may be set on error for audit correlation.
func (s *Service) converse(ctx context.Context, msg models.InboundMessage) (*models.Lead, error) {
	lead, err := s.ResolveLead(ctx, msg)
	if err != nil {
		s.audit(ctx, models.LogEntry{Phone: msg.From, Type: models.LogTypeIncoming, Message: msg.Body})
		return nil, err
	}
	s.audit(ctx, models.LogEntry{
		Phone:    lead.Phone,
		Type:     models.LogTypeIncoming,
		Message:  msg.Body,
		ThreadID: lead.ThreadID,
		LeadID:   lead.ID,
	})
	if s.gen.NeedsThread() {
		threaded, err := s.EnsureThread(ctx, lead)
		if err != nil {
			return lead, err
		}
		lead = threaded
	}

	if _, err := s.store.AppendTurn(ctx, models.Turn{
		LeadID:    lead.ID,
		Role:      models.RoleUser,
		Content:   msg.Body,
		CreatedAt: s.now(),
	}); err != nil {
		return lead, apperrors.Upstream(err, "append user turn")
	}

	req := reply.Request{Lead: *lead, Message: msg.Body}
	if s.gen.NeedsHistory() {
		if req.History, err = s.history(ctx, lead); err != nil {
			return lead, err
		}
	}

	text, err := s.generate(ctx, req)
	if err != nil {
		return lead, err
	}

	if _, err := s.store.AppendTurn(ctx, models.Turn{
		LeadID:    lead.ID,
		Role:      models.RoleAssistant,
		Content:   text,
		CreatedAt: s.now(),
	}); err != nil {
		return lead, apperrors.Upstream(err, "append assistant turn")
	}
	s.audit(ctx, models.LogEntry{
		Phone:    lead.Phone,
		Type:     models.LogTypeAssistantReply,
		Message:  text,
		ThreadID: lead.ThreadID,
		LeadID:   lead.ID,
	})

	if err := s.sleep(ctx, s.sendDelay); err != nil {
		return lead, apperrors.Upstream(err, "send delay")
	}
	sid, err := s.send(ctx, lead.Phone, text)
	if err != nil {
		return lead, err
	}
	slog.Info("Relay HandleInbound replied", "lead_id", lead.ID, "phone", lead.Phone, "thread_id", lead.ThreadID, "sid", sid)
	return lead, nil
}

// history loads the persisted turns and prepends the tenant prompts.
func (s *Service) history(ctx context.Context, lead *models.Lead) ([]models.Turn, error) {
	turns, err := s.store.ListTurns(ctx, lead.ID)
	if err != nil {
		return nil, apperrors.Upstream(err, "list turns")
	}
	system, err := s.store.GetPromptTemplate(ctx, lead.TenantID, models.PromptKindSystem)
	if err != nil {
		return nil, apperrors.Upstream(err, "load system prompt")
	}
	initial, err := s.store.GetPromptTemplate(ctx, lead.TenantID, models.PromptKindInitial)
	if err != nil {
		return nil, apperrors.Upstream(err, "load initial prompt")
	}
	return reply.BuildHistory(turns, system, initial, lead.FirstName), nil
}

// generate calls the backend for a reply and rejects empty text.
func (s *Service) generate(ctx context.Context, req reply.Request) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()
	started := time.Now()
	text, err := s.gen.Reply(rctx, req)
	metrics.ObserveReply(s.gen.Name(), "reply", started, err)
	if err != nil {
		return "", apperrors.Upstream(err, "generate reply")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.Upstream(apperrors.ErrEmptyReply, "generate reply")
	}
	return text, nil
}
