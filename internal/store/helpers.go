package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
	"github.com/cenkalti/backoff/v4"
)

// sqlStore implements Store on database/sql. PostgresStore and SQLiteStore
// embed it and supply the dialect differences.
type sqlStore struct {
	db       *sql.DB
	name     string               // used as the log prefix
	rebind   func(string) string  // converts ? placeholders to the driver's style
	isUnique func(err error) bool // reports unique-constraint violations
	timeout  time.Duration
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rebindDollar rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func rebindNone(query string) string { return query }

// openWithRetry opens and pings a database, retrying with exponential backoff
// while the total elapsed time stays under cfg.ConnectRetry.
func openWithRetry(driver string, cfg Opts) (*sql.DB, error) {
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}
	if cfg.ConnectRetry <= 0 {
		if err := ping(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.ConnectRetry
	err = backoff.RetryNotify(ping, b, func(err error, next time.Duration) {
		slog.Warn("Database ping failed, retrying", "driver", driver, "error", err, "retry_in", next)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database not reachable after %s: %w", cfg.ConnectRetry, err)
	}
	return db, nil
}

// withTimeout applies the configured statement timeout.
func (s *sqlStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *sqlStore) translate(err error) error {
	if err != nil && s.isUnique != nil && s.isUnique(err) {
		return fmt.Errorf("%w: %v", apperrors.ErrDuplicate, err)
	}
	return err
}

const leadColumns = `id, phone, first_name, thread_id, tenant_id, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var l models.Lead
	var firstName, threadID, tenantID sql.NullString
	if err := row.Scan(&l.ID, &l.Phone, &firstName, &threadID, &tenantID, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.FirstName = firstName.String
	l.ThreadID = threadID.String
	l.TenantID = tenantID.String
	return &l, nil
}

func scanPending(row rowScanner) (*models.PendingLead, error) {
	var p models.PendingLead
	var firstName, tenantID sql.NullString
	if err := row.Scan(&p.ID, &p.Phone, &firstName, &tenantID, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.FirstName = firstName.String
	p.TenantID = tenantID.String
	return &p, nil
}

func (s *sqlStore) GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+leadColumns+` FROM leads WHERE phone = ?`), phone)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetLeadByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get lead for %s: %w", phone, err)
	}
	return lead, nil
}

func (s *sqlStore) CreateLead(ctx context.Context, lead models.Lead) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		lead.ID, lead.Phone, lead.FirstName, nilIfEmpty(lead.ThreadID), nilIfEmpty(lead.TenantID), lead.CreatedAt)
	if err != nil {
		err = s.translate(err)
		if apperrors.IsDuplicate(err) {
			slog.Debug(s.name+" CreateLead duplicate phone", "phone", lead.Phone)
			return err
		}
		slog.Error(s.name+" CreateLead failed", "error", err, "phone", lead.Phone)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.Phone, err)
	}
	slog.Debug(s.name+" CreateLead succeeded", "lead_id", lead.ID, "phone", lead.Phone)
	return nil
}

func (s *sqlStore) SetLeadThread(ctx context.Context, leadID, threadID string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE leads SET thread_id = ? WHERE id = ? AND thread_id IS NULL`), threadID, leadID); err != nil {
		slog.Error(s.name+" SetLeadThread update failed", "error", err, "lead_id", leadID)
		return "", fmt.Errorf("failed to set thread for lead %s: %w", leadID, err)
	}
	var stored sql.NullString
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT thread_id FROM leads WHERE id = ?`), leadID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFound("lead %s", leadID)
	}
	if err != nil {
		slog.Error(s.name+" SetLeadThread read-back failed", "error", err, "lead_id", leadID)
		return "", fmt.Errorf("failed to read thread for lead %s: %w", leadID, err)
	}
	return stored.String, nil
}

func (s *sqlStore) ListPendingLeads(ctx context.Context) ([]models.PendingLead, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT id, phone, first_name, tenant_id, created_at FROM pending_leads ORDER BY created_at, id`)
	if err != nil {
		slog.Error(s.name+" ListPendingLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query pending leads: %w", err)
	}
	defer rows.Close()
	var out []models.PendingLead
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending lead row: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending lead rows: %w", err)
	}
	slog.Debug(s.name+" ListPendingLeads succeeded", "count", len(out))
	return out, nil
}

func (s *sqlStore) GetPendingLeadByPhone(ctx context.Context, phone string) (*models.PendingLead, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, phone, first_name, tenant_id, created_at FROM pending_leads WHERE phone = ? ORDER BY created_at, id LIMIT 1`), phone)
	p, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetPendingLeadByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get pending lead for %s: %w", phone, err)
	}
	return p, nil
}

func (s *sqlStore) AddPendingLead(ctx context.Context, p models.PendingLead) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO pending_leads (id, phone, first_name, tenant_id, created_at) VALUES (?, ?, ?, ?, ?)`),
		p.ID, p.Phone, p.FirstName, nilIfEmpty(p.TenantID), p.CreatedAt)
	if err != nil {
		slog.Error(s.name+" AddPendingLead failed", "error", err, "phone", p.Phone)
		return fmt.Errorf("failed to insert pending lead for %s: %w", p.Phone, s.translate(err))
	}
	return nil
}

func (s *sqlStore) DeletePendingLead(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM pending_leads WHERE id = ?`), id); err != nil {
		slog.Error(s.name+" DeletePendingLead failed", "error", err, "pending_id", id)
		return fmt.Errorf("failed to delete pending lead %s: %w", id, err)
	}
	return nil
}

func (s *sqlStore) DeletePendingLeadsByPhone(ctx context.Context, phone string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM pending_leads WHERE phone = ?`), phone)
	if err != nil {
		slog.Error(s.name+" DeletePendingLeadsByPhone failed", "error", err, "phone", phone)
		return 0, fmt.Errorf("failed to delete pending leads for %s: %w", phone, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqlStore) PromoteLead(ctx context.Context, pendingID string, lead models.Lead) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin promote transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		lead.ID, lead.Phone, lead.FirstName, nilIfEmpty(lead.ThreadID), nilIfEmpty(lead.TenantID), lead.CreatedAt); err != nil {
		err = s.translate(err)
		if apperrors.IsDuplicate(err) {
			return err
		}
		slog.Error(s.name+" PromoteLead insert failed", "error", err, "phone", lead.Phone)
		return fmt.Errorf("failed to insert promoted lead for %s: %w", lead.Phone, err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM pending_leads WHERE id = ? OR phone = ?`), pendingID, lead.Phone); err != nil {
		slog.Error(s.name+" PromoteLead delete failed", "error", err, "pending_id", pendingID)
		return fmt.Errorf("failed to delete pending lead %s: %w", pendingID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promote transaction: %w", err)
	}
	slog.Debug(s.name+" PromoteLead succeeded", "lead_id", lead.ID, "pending_id", pendingID)
	return nil
}

func (s *sqlStore) AppendTurn(ctx context.Context, turn models.Turn) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO conversations (lead_id, role, content, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		turn.LeadID, string(turn.Role), turn.Content, turn.CreatedAt).Scan(&id)
	if err != nil {
		slog.Error(s.name+" AppendTurn failed", "error", err, "lead_id", turn.LeadID, "role", turn.Role)
		return 0, fmt.Errorf("failed to append %s turn for lead %s: %w", turn.Role, turn.LeadID, err)
	}
	return id, nil
}

func (s *sqlStore) ListTurns(ctx context.Context, leadID string) ([]models.Turn, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, lead_id, role, content, created_at FROM conversations WHERE lead_id = ? ORDER BY id`), leadID)
	if err != nil {
		slog.Error(s.name+" ListTurns query failed", "error", err, "lead_id", leadID)
		return nil, fmt.Errorf("failed to query turns for lead %s: %w", leadID, err)
	}
	defer rows.Close()
	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var role string
		if err := rows.Scan(&t.ID, &t.LeadID, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}
	return turns, nil
}

func (s *sqlStore) AddLogEntry(ctx context.Context, e models.LogEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO logs (phone, type, message, thread_id, lead_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		e.Phone, string(e.Type), e.Message, nilIfEmpty(e.ThreadID), nilIfEmpty(e.LeadID), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s log entry: %w", e.Type, err)
	}
	return nil
}

func (s *sqlStore) GetPromptTemplate(ctx context.Context, tenantID string, kind models.PromptKind) (*models.PromptTemplate, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	p := models.PromptTemplate{TenantID: tenantID, Kind: kind}
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT template FROM prompts WHERE tenant_id = ? AND kind = ?`), tenantID, string(kind)).Scan(&p.Template)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetPromptTemplate failed", "error", err, "tenant_id", tenantID, "kind", kind)
		return nil, fmt.Errorf("failed to get %s prompt for tenant %s: %w", kind, tenantID, err)
	}
	return &p, nil
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, phone string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO inbound_dedup (message_id, phone, received_at) VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`),
		messageID, phone, time.Now().UTC())
	if err != nil {
		slog.Error(s.name+" RecordInbound failed", "error", err, "message_id", messageID)
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *sqlStore) MarkInboundProcessed(ctx context.Context, messageID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`), time.Now().UTC(), messageID); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *sqlStore) ReleaseInbound(ctx context.Context, messageID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM inbound_dedup WHERE message_id = ? AND processed_at IS NULL`), messageID); err != nil {
		return fmt.Errorf("release inbound failed: %w", err)
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	slog.Debug(s.name + " closing database connection")
	return s.db.Close()
}
