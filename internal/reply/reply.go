// Package reply defines the reply-generation capability and its three
// variants: an automation webhook, a stateless chat completion and a
// thread-based remote assistant. The relay selects one by configuration and
// drives it through the Generator interface.
package reply

import (
	"context"
	"fmt"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

// Backend names as configured by REPLY_BACKEND.
const (
	BackendWebhook    = "webhook"
	BackendCompletion = "completion"
	BackendAssistant  = "assistant"
)

// Request carries everything a backend may need to produce the next reply.
type Request struct {
	Lead    models.Lead
	Message string // the inbound message being answered
	// History is the full ordered conversation including virtual prompt
	// turns. It is only populated for backends that report NeedsHistory.
	History []models.Turn
}

// InitialRequest asks for the first outbound message to a lead.
type InitialRequest struct {
	Lead     models.Lead
	Template *models.PromptTemplate // tenant initial template, may be nil
}

// Generator produces assistant replies.
type Generator interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// NeedsThread reports whether the lead must carry a thread id before Reply.
	NeedsThread() bool
	// NeedsHistory reports whether Reply expects Request.History.
	NeedsHistory() bool
	Reply(ctx context.Context, req Request) (string, error)
	Initial(ctx context.Context, req InitialRequest) (string, error)
}

// ThreadCreator creates conversation threads on a stateful backend.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (string, error)
}

// renderTemplate renders an initial template or reports that none exists.
func renderTemplate(req InitialRequest) (string, error) {
	if req.Template == nil || req.Template.Template == "" {
		return "", fmt.Errorf("%w: no initial prompt for tenant %q", apperrors.ErrNotConfigured, req.Lead.TenantID)
	}
	return req.Template.Render(req.Lead.FirstName), nil
}
