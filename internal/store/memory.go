package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

type promptKey struct {
	tenant string
	kind   models.PromptKind
}

type dedupRecord struct {
	phone     string
	processed bool
}

// InMemoryStore is a Store kept entirely in process memory.
// It enforces the same phone uniqueness as the SQL backends.
type InMemoryStore struct {
	mu       sync.RWMutex
	leads    map[string]*models.Lead // by id
	byPhone  map[string]string       // phone -> lead id
	pending  []models.PendingLead
	turns    []models.Turn
	nextTurn int64
	logs     []models.LogEntry
	prompts  map[promptKey]string
	inbound  map[string]*dedupRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		leads:   make(map[string]*models.Lead),
		byPhone: make(map[string]string),
		prompts: make(map[promptKey]string),
		inbound: make(map[string]*dedupRecord),
	}
}

func (s *InMemoryStore) GetLeadByPhone(_ context.Context, phone string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return nil, nil
	}
	lead := *s.leads[id]
	return &lead, nil
}

func (s *InMemoryStore) CreateLead(_ context.Context, lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLeadLocked(lead)
}

func (s *InMemoryStore) insertLeadLocked(lead models.Lead) error {
	if _, exists := s.byPhone[lead.Phone]; exists {
		return apperrors.ErrDuplicate
	}
	if _, exists := s.leads[lead.ID]; exists {
		return apperrors.ErrDuplicate
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	s.leads[lead.ID] = &lead
	s.byPhone[lead.Phone] = lead.ID
	return nil
}

func (s *InMemoryStore) SetLeadThread(_ context.Context, leadID, threadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return "", apperrors.NotFound("lead %s", leadID)
	}
	if lead.ThreadID == "" {
		lead.ThreadID = threadID
	}
	return lead.ThreadID, nil
}

func (s *InMemoryStore) ListPendingLeads(_ context.Context) ([]models.PendingLead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PendingLead, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

func (s *InMemoryStore) GetPendingLeadByPhone(_ context.Context, phone string) (*models.PendingLead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pending {
		if p.Phone == phone {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) AddPendingLead(_ context.Context, p models.PendingLead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.pending {
		if existing.ID == p.ID {
			return apperrors.ErrDuplicate
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.pending = append(s.pending, p)
	return nil
}

func (s *InMemoryStore) DeletePendingLead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removePendingLocked(func(p models.PendingLead) bool { return p.ID == id })
	return nil
}

func (s *InMemoryStore) DeletePendingLeadsByPhone(_ context.Context, phone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removePendingLocked(func(p models.PendingLead) bool { return p.Phone == phone }), nil
}

func (s *InMemoryStore) removePendingLocked(match func(models.PendingLead) bool) int {
	kept := s.pending[:0]
	removed := 0
	for _, p := range s.pending {
		if match(p) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.pending = kept
	return removed
}

func (s *InMemoryStore) PromoteLead(_ context.Context, pendingID string, lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertLeadLocked(lead); err != nil {
		return err
	}
	s.removePendingLocked(func(p models.PendingLead) bool { return p.ID == pendingID || p.Phone == lead.Phone })
	return nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn models.Turn) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTurn++
	turn.ID = s.nextTurn
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.turns = append(s.turns, turn)
	return turn.ID, nil
}

func (s *InMemoryStore) ListTurns(_ context.Context, leadID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Turn
	for _, t := range s.turns {
		if t.LeadID == leadID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) AddLogEntry(_ context.Context, e models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.logs) + 1)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.logs = append(s.logs, e)
	return nil
}

// LogEntries returns a copy of every audit entry written so far.
func (s *InMemoryStore) LogEntries() []models.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// Leads returns a copy of every stored lead.
func (s *InMemoryStore) Leads() []models.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out
}

// PutPromptTemplate stores or replaces a tenant template.
func (s *InMemoryStore) PutPromptTemplate(p models.PromptTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[promptKey{p.TenantID, p.Kind}] = p.Template
}

func (s *InMemoryStore) GetPromptTemplate(_ context.Context, tenantID string, kind models.PromptKind) (*models.PromptTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.prompts[promptKey{tenantID, kind}]
	if !ok {
		return nil, nil
	}
	return &models.PromptTemplate{TenantID: tenantID, Kind: kind, Template: tpl}, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.inbound[messageID]; seen {
		return false, nil
	}
	s.inbound[messageID] = &dedupRecord{phone: phone}
	return true, nil
}

func (s *InMemoryStore) MarkInboundProcessed(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.inbound[messageID]; ok {
		rec.processed = true
	}
	return nil
}

func (s *InMemoryStore) ReleaseInbound(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.inbound[messageID]; ok && !rec.processed {
		delete(s.inbound, messageID)
	}
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
