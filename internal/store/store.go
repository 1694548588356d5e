// Package store provides storage backends for LeadRelay.
//
// It persists leads, staged (pending) leads, conversation turns, audit log
// entries, tenant prompt templates and inbound dedup records. Backends are an
// in-memory store for tests and local runs, PostgreSQL and SQLite.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/BTreeMap/LeadRelay/internal/models"
)

// Store is the record store backing the conversation relay.
//
// Lookups that find nothing return (nil, nil). Inserts that clash with a
// uniqueness constraint return an error wrapping apperrors.ErrDuplicate.
type Store interface {
	// GetLeadByPhone returns the lead for phone, or nil if none exists.
	GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error)
	// CreateLead inserts a new lead. A phone clash returns ErrDuplicate.
	CreateLead(ctx context.Context, lead models.Lead) error
	// SetLeadThread attaches threadID only if the lead has no thread yet and
	// returns the thread identifier stored after the update.
	SetLeadThread(ctx context.Context, leadID, threadID string) (string, error)

	ListPendingLeads(ctx context.Context) ([]models.PendingLead, error)
	GetPendingLeadByPhone(ctx context.Context, phone string) (*models.PendingLead, error)
	AddPendingLead(ctx context.Context, pending models.PendingLead) error
	DeletePendingLead(ctx context.Context, id string) error
	// DeletePendingLeadsByPhone removes every staged record for phone and
	// returns how many were removed.
	DeletePendingLeadsByPhone(ctx context.Context, phone string) (int, error)
	// PromoteLead inserts lead and removes all staged records for its phone in
	// one transaction.
	PromoteLead(ctx context.Context, pendingID string, lead models.Lead) error

	// AppendTurn appends a conversation turn and returns its ordering id.
	AppendTurn(ctx context.Context, turn models.Turn) (int64, error)
	// ListTurns returns every turn for a lead in insertion order.
	ListTurns(ctx context.Context, leadID string) ([]models.Turn, error)

	AddLogEntry(ctx context.Context, entry models.LogEntry) error

	GetPromptTemplate(ctx context.Context, tenantID string, kind models.PromptKind) (*models.PromptTemplate, error)

	// RecordInbound claims a provider message id. It returns false if the id
	// was already claimed.
	RecordInbound(ctx context.Context, messageID, phone string) (bool, error)
	MarkInboundProcessed(ctx context.Context, messageID string) error
	// ReleaseInbound drops an unprocessed claim so a provider retry can run.
	ReleaseInbound(ctx context.Context, messageID string) error

	Ping(ctx context.Context) error
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN          string        // connection string or SQLite file path
	QueryTimeout time.Duration // upper bound for a single statement, 0 disables
	ConnectRetry time.Duration // total time spent retrying the initial connection
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithQueryTimeout bounds every statement issued by the store.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.QueryTimeout = d
	}
}

// WithConnectRetry retries the initial connection with exponential backoff
// for up to d before giving up.
func WithConnectRetry(d time.Duration) Option {
	return func(o *Opts) {
		o.ConnectRetry = d
	}
}

// DetectDSNType returns the database/sql driver name for a DSN:
// "postgres" for URLs and key=value connection strings, "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(dsn, "file:"):
		return "sqlite3"
	case strings.Contains(dsn, "host="), strings.Contains(dsn, "dbname="), strings.Contains(dsn, "user="):
		return "postgres"
	default:
		return "sqlite3"
	}
}

// NewStore opens the backend selected by the configured DSN.
// Without a DSN an in-memory store is returned.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
