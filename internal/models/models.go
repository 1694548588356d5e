// Package models defines the core data structures for LeadRelay.
//
// It includes leads, staged (pending) leads, conversation turns, tenant prompt
// templates and audit log entries, which are shared across modules.
package models

import (
	"strings"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a message written by the lead.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the reply-generation backend.
	RoleAssistant Role = "assistant"
	// RoleSystem is an instruction turn that is never sent over SMS.
	RoleSystem Role = "system"
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Lead identifies a unique conversant. At most one Lead exists per phone number.
type Lead struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	FirstName string    `json:"first_name,omitempty"`
	ThreadID  string    `json:"thread_id,omitempty"` // empty until the first thread is established
	TenantID  string    `json:"tenant_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasThread reports whether a conversation thread has been attached to the lead.
func (l *Lead) HasThread() bool {
	return l != nil && l.ThreadID != ""
}

// PendingLead is a staged import record awaiting first outbound contact.
type PendingLead struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	FirstName string    `json:"first_name"`
	TenantID  string    `json:"tenant_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one append-only message in a lead's conversation.
// ID increases with insertion order.
type Turn struct {
	ID        int64     `json:"id"`
	LeadID    string    `json:"lead_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PromptKind distinguishes the two tenant template slots.
type PromptKind string

const (
	// PromptKindInitial is the first outbound message sent to a new lead.
	PromptKindInitial PromptKind = "initial"
	// PromptKindSystem is the system instruction for completion backends.
	PromptKindSystem PromptKind = "system"
)

// FirstNamePlaceholder is substituted with the lead's first name when rendering.
const FirstNamePlaceholder = "{{first_name}}"

// PromptTemplate is a tenant-scoped template keyed by (TenantID, Kind).
type PromptTemplate struct {
	TenantID string     `json:"tenant_id"`
	Kind     PromptKind `json:"kind"`
	Template string     `json:"template"`
}

// Render substitutes every first-name placeholder, tolerating inner spaces.
func (p PromptTemplate) Render(firstName string) string {
	out := strings.ReplaceAll(p.Template, FirstNamePlaceholder, firstName)
	return strings.ReplaceAll(out, "{{ first_name }}", firstName)
}

// LogType classifies audit log entries.
type LogType string

const (
	LogTypeIncoming       LogType = "incoming"
	LogTypeThreadCreated  LogType = "thread_created"
	LogTypeAssistantReply LogType = "assistant_reply"
	LogTypeInitialSent    LogType = "initial_sent"
	LogTypePendingDropped LogType = "pending_dropped"
	LogTypeError          LogType = "error"
)

// LogEntry is an append-only audit record.
type LogEntry struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Type      LogType   `json:"type"`
	Message   string    `json:"message"`
	ThreadID  string    `json:"thread_id,omitempty"`
	LeadID    string    `json:"lead_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
