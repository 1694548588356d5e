package reply

import (
	"context"
	"fmt"
)

// assistantRunner is satisfied by *genai.Client.
type assistantRunner interface {
	RunAssistant(ctx context.Context, threadID, userMessage, instructions string) (string, error)
}

// AssistantGenerator drives a remote assistant that keeps the conversation
// in its own thread.
type AssistantGenerator struct {
	runner assistantRunner
}

// Compile-time check that AssistantGenerator implements Generator.
var _ Generator = (*AssistantGenerator)(nil)

// NewAssistantGenerator wraps an assistant runner.
func NewAssistantGenerator(runner assistantRunner) *AssistantGenerator {
	return &AssistantGenerator{runner: runner}
}

func (g *AssistantGenerator) Name() string       { return BackendAssistant }
func (g *AssistantGenerator) NeedsThread() bool  { return true }
func (g *AssistantGenerator) NeedsHistory() bool { return false }

func (g *AssistantGenerator) Reply(ctx context.Context, req Request) (string, error) {
	return g.runner.RunAssistant(ctx, req.Lead.ThreadID, req.Message, "")
}

// Initial uses the tenant template when one exists, otherwise it asks the
// assistant to open the conversation.
func (g *AssistantGenerator) Initial(ctx context.Context, req InitialRequest) (string, error) {
	if req.Template != nil && req.Template.Template != "" {
		return req.Template.Render(req.Lead.FirstName), nil
	}
	instructions := fmt.Sprintf("Write the first outreach text message to a new lead named %s. Keep it short and friendly.", req.Lead.FirstName)
	return g.runner.RunAssistant(ctx, req.Lead.ThreadID, "", instructions)
}
