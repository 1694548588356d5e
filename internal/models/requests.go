package models

// InboundMessage is the parsed telephony webhook payload.
type InboundMessage struct {
	From       string `json:"From" validate:"required"`
	Body       string `json:"Body" validate:"required"`
	To         string `json:"To,omitempty"`
	MessageSID string `json:"MessageSid,omitempty"`
}

// InitialRequest asks the relay to start a conversation with one staged lead.
type InitialRequest struct {
	Phone     string `json:"phone" validate:"required"`
	FirstName string `json:"first_name" validate:"required,max=100"`
}

// InitialResult describes the outcome of a single-lead initiation.
type InitialResult struct {
	LeadID        string `json:"lead_id"`
	ThreadID      string `json:"thread_id,omitempty"`
	AlreadyExists bool   `json:"-"`
}

// SweepLead is one entry in a sweep result list.
type SweepLead struct {
	Phone     string   `json:"phone"`
	FirstName string   `json:"first_name"`
	LeadID    string   `json:"lead_id,omitempty"`
	Dropped   []string `json:"dropped_fields,omitempty"` // pending attributes not applied to an existing lead
	Reason    string   `json:"reason,omitempty"`
}

// SweepResult classifies every pending lead processed by a sweep.
// A lead appears in at most one list; failed leads are reported separately.
type SweepResult struct {
	Inserted    []SweepLead `json:"inserted"`
	NotInserted []SweepLead `json:"not_inserted"`
	Failed      []SweepLead `json:"failed,omitempty"`
}

// NewSweepResult returns a result with non-nil lists so they encode as [].
func NewSweepResult() *SweepResult {
	return &SweepResult{
		Inserted:    []SweepLead{},
		NotInserted: []SweepLead{},
	}
}
