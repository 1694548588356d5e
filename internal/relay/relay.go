// Package relay implements the conversation relay: lead and thread
// resolution, inbound turn orchestration and outbound first contact.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/lock"
	"github.com/BTreeMap/LeadRelay/internal/messaging"
	"github.com/BTreeMap/LeadRelay/internal/metrics"
	"github.com/BTreeMap/LeadRelay/internal/models"
	"github.com/BTreeMap/LeadRelay/internal/reply"
	"github.com/BTreeMap/LeadRelay/internal/store"
)

// Defaults for external call bounds.
const (
	DefaultReplyTimeout     = 30 * time.Second
	DefaultSendTimeout      = 10 * time.Second
	DefaultAuditTimeout     = 5 * time.Second
	DefaultSweepConcurrency = 4
)

var tracer = otel.Tracer("github.com/BTreeMap/LeadRelay/internal/relay")

// Opts holds the collaborators and settings of a Service.
type Opts struct {
	Store            store.Store
	Sender           messaging.Service
	Generator        reply.Generator
	Threads          reply.ThreadCreator
	Tenants          TenantResolver
	Locker           lock.Locker
	SendDelay        time.Duration // pause before an inbound reply is sent
	ReplyTimeout     time.Duration
	SendTimeout      time.Duration
	AuditTimeout     time.Duration
	SweepConcurrency int
	Missing          []string // configuration names absent at startup
	Now              func() time.Time
	Sleep            func(ctx context.Context, d time.Duration) error
	NewID            func() string
}

// Option defines a configuration option for the relay Service.
type Option func(*Opts)

// WithStore sets the record store.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithSender sets the outbound SMS service.
func WithSender(s messaging.Service) Option {
	return func(o *Opts) { o.Sender = s }
}

// WithGenerator sets the reply-generation backend.
func WithGenerator(g reply.Generator) Option {
	return func(o *Opts) { o.Generator = g }
}

// WithThreadCreator sets the thread factory used by thread-based backends.
func WithThreadCreator(t reply.ThreadCreator) Option {
	return func(o *Opts) { o.Threads = t }
}

// WithTenantResolver sets how new inbound leads are assigned a tenant.
func WithTenantResolver(r TenantResolver) Option {
	return func(o *Opts) { o.Tenants = r }
}

// WithLocker sets the keyed lock used for thread creation and initiation.
func WithLocker(l lock.Locker) Option {
	return func(o *Opts) { o.Locker = l }
}

// WithSendDelay delays inbound replies before they are sent.
func WithSendDelay(d time.Duration) Option {
	return func(o *Opts) { o.SendDelay = d }
}

// WithReplyTimeout bounds each reply-generation and thread-creation call.
func WithReplyTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ReplyTimeout = d }
}

// WithSendTimeout bounds each telephony send.
func WithSendTimeout(d time.Duration) Option {
	return func(o *Opts) { o.SendTimeout = d }
}

// WithAuditTimeout bounds each best-effort audit write.
func WithAuditTimeout(d time.Duration) Option {
	return func(o *Opts) { o.AuditTimeout = d }
}

// WithSweepConcurrency sets how many pending leads a sweep processes at once.
func WithSweepConcurrency(n int) Option {
	return func(o *Opts) { o.SweepConcurrency = n }
}

// WithMissingConfig records configuration names that were absent at startup.
func WithMissingConfig(names ...string) Option {
	return func(o *Opts) { o.Missing = append(o.Missing, names...) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// WithSleep overrides how the send delay is waited out.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Opts) { o.Sleep = sleep }
}

// WithIDGenerator overrides lead id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Opts) { o.NewID = newID }
}

// Service is the conversation relay. All collaborators are injected; a nil
// collaborator makes dependent operations fail with ErrNotConfigured.
type Service struct {
	store            store.Store
	sender           messaging.Service
	gen              reply.Generator
	threads          reply.ThreadCreator
	tenants          TenantResolver
	locker           lock.Locker
	sendDelay        time.Duration
	replyTimeout     time.Duration
	sendTimeout      time.Duration
	auditTimeout     time.Duration
	sweepConcurrency int
	missing          []string
	now              func() time.Time
	sleep            func(ctx context.Context, d time.Duration) error
	newID            func() string
}

// NewService creates a relay Service.
func NewService(opts ...Option) *Service {
	cfg := Opts{
		ReplyTimeout:     DefaultReplyTimeout,
		SendTimeout:      DefaultSendTimeout,
		AuditTimeout:     DefaultAuditTimeout,
		SweepConcurrency: DefaultSweepConcurrency,
		Now:              func() time.Time { return time.Now().UTC() },
		Sleep:            sleepContext,
		NewID:            uuid.NewString,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Tenants == nil {
		cfg.Tenants = NoTenants{}
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocalLocker()
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = DefaultSweepConcurrency
	}
	s := &Service{
		store:            cfg.Store,
		sender:           cfg.Sender,
		gen:              cfg.Generator,
		threads:          cfg.Threads,
		tenants:          cfg.Tenants,
		locker:           cfg.Locker,
		sendDelay:        cfg.SendDelay,
		replyTimeout:     cfg.ReplyTimeout,
		sendTimeout:      cfg.SendTimeout,
		auditTimeout:     cfg.AuditTimeout,
		sweepConcurrency: cfg.SweepConcurrency,
		missing:          cfg.Missing,
		now:              cfg.Now,
		sleep:            cfg.Sleep,
		newID:            cfg.NewID,
	}
	st := s.Status()
	slog.Info("Relay service created", "ready", st.Ready, "backend", st.Backend, "send_delay", s.sendDelay, "missing", st.Missing)
	return s
}

// Status reports which collaborators are configured.
type Status struct {
	Ready     bool     `json:"ready"`
	Backend   string   `json:"reply_backend,omitempty"`
	Store     bool     `json:"store"`
	Telephony bool     `json:"telephony"`
	Reply     bool     `json:"reply"`
	Threads   bool     `json:"threads"`
	Missing   []string `json:"missing,omitempty"`
}

// Status returns the current configuration status. It makes no external calls.
func (s *Service) Status() Status {
	st := Status{
		Store:     s.store != nil,
		Telephony: s.sender != nil,
		Reply:     s.gen != nil,
		Threads:   s.threads != nil,
		Missing:   append([]string(nil), s.missing...),
	}
	if s.gen != nil {
		st.Backend = s.gen.Name()
	}
	st.Ready = s.ready() == nil
	return st
}

// Ping checks that the store answers.
func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return apperrors.NotConfigured("store")
	}
	return apperrors.Upstream(s.store.Ping(ctx), "store ping")
}

// ready returns ErrNotConfigured unless every collaborator a request needs is present.
func (s *Service) ready() error {
	var absent []string
	if s.store == nil {
		absent = append(absent, "store")
	}
	if s.sender == nil {
		absent = append(absent, "telephony")
	}
	if s.gen == nil {
		absent = append(absent, "reply backend")
	} else if s.gen.NeedsThread() && s.threads == nil {
		absent = append(absent, "thread creator")
	}
	if len(absent) == 0 {
		return nil
	}
	if len(s.missing) > 0 {
		return apperrors.NotConfigured(s.missing...)
	}
	return apperrors.NotConfigured(absent...)
}

// audit writes a LogEntry. Failures are logged and counted, never returned.
func (s *Service) audit(ctx context.Context, entry models.LogEntry) {
	if s.store == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
	defer cancel()
	entry.CreatedAt = s.now()
	if err := s.store.AddLogEntry(actx, entry); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		slog.Warn("Relay audit write failed", "type", entry.Type, "phone", entry.Phone, "error", err)
	}
}

// auditError records err against phone and the lead, if known.
func (s *Service) auditError(ctx context.Context, phone string, lead *models.Lead, err error) {
	entry := models.LogEntry{Phone: phone, Type: models.LogTypeError, Message: err.Error()}
	if lead != nil {
		entry.LeadID = lead.ID
		entry.ThreadID = lead.ThreadID
	}
	s.audit(ctx, entry)
}

// send delivers body to phone within the send timeout.
func (s *Service) send(ctx context.Context, phone, body string) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	sid, err := s.sender.SendMessage(sctx, phone, body)
	if err != nil {
		return "", apperrors.Upstream(err, "telephony send")
	}
	return sid, nil
}

func (s *Service) canonicalPhone(phone string) (string, error) {
	canonical, err := s.sender.ValidateAndCanonicalizeRecipient(phone)
	if err != nil {
		return "", apperrors.Validation("%v", err)
	}
	return canonical, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
