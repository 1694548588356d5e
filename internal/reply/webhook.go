package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
)

// DefaultWebhookTimeout bounds a single automation webhook call.
const DefaultWebhookTimeout = 30 * time.Second

type chatPayload struct {
	Phone    string `json:"phone"`
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
	LeadID   string `json:"lead_id"`
}

type initialPayload struct {
	Phone     string `json:"phone"`
	ThreadID  string `json:"thread_id"`
	LeadID    string `json:"lead_id"`
	FirstName string `json:"first_name"`
}

type webhookResponse struct {
	Reply string `json:"reply"`
}

// WebhookGenerator posts conversation context to an external automation
// workflow, which owns the LLM call and answers with {"reply": "..."}.
type WebhookGenerator struct {
	http       *resty.Client
	chatURL    string
	initialURL string
}

// Compile-time check that WebhookGenerator implements Generator.
var _ Generator = (*WebhookGenerator)(nil)

// NewWebhookGenerator creates a generator for the given workflow URLs.
// initialURL may be empty, in which case Initial renders the tenant template.
func NewWebhookGenerator(chatURL, initialURL string, timeout time.Duration) *WebhookGenerator {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookGenerator{
		http: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
		chatURL:    chatURL,
		initialURL: initialURL,
	}
}

func (g *WebhookGenerator) Name() string       { return BackendWebhook }
func (g *WebhookGenerator) NeedsThread() bool  { return true }
func (g *WebhookGenerator) NeedsHistory() bool { return false }

// Reply forwards the inbound message to the chat workflow.
func (g *WebhookGenerator) Reply(ctx context.Context, req Request) (string, error) {
	if g.chatURL == "" {
		return "", apperrors.NotConfigured("N8N_CHAT_WEBHOOK")
	}
	return g.post(ctx, g.chatURL, chatPayload{
		Phone:    req.Lead.Phone,
		Message:  req.Message,
		ThreadID: req.Lead.ThreadID,
		LeadID:   req.Lead.ID,
	})
}

// Initial asks the initial-message workflow for the opening text.
func (g *WebhookGenerator) Initial(ctx context.Context, req InitialRequest) (string, error) {
	if g.initialURL == "" {
		return renderTemplate(req)
	}
	return g.post(ctx, g.initialURL, initialPayload{
		Phone:     req.Lead.Phone,
		ThreadID:  req.Lead.ThreadID,
		LeadID:    req.Lead.ID,
		FirstName: req.Lead.FirstName,
	})
}

func (g *WebhookGenerator) post(ctx context.Context, url string, body interface{}) (string, error) {
	var out webhookResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(url)
	if err != nil {
		slog.Error("WebhookGenerator request failed", "url", url, "error", err)
		return "", fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		slog.Error("WebhookGenerator returned error status", "url", url, "status", resp.StatusCode())
		return "", fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return strings.TrimSpace(out.Reply), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
