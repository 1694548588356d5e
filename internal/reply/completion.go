package reply

import (
	"context"

	"github.com/BTreeMap/LeadRelay/internal/models"
)

// turnCompleter is satisfied by *genai.Client.
type turnCompleter interface {
	GenerateWithTurns(ctx context.Context, turns []models.Turn) (string, error)
}

// CompletionGenerator calls a stateless chat completion endpoint with the
// lead's full history. It needs no thread.
type CompletionGenerator struct {
	llm turnCompleter
}

// Compile-time check that CompletionGenerator implements Generator.
var _ Generator = (*CompletionGenerator)(nil)

// NewCompletionGenerator wraps a chat completion client.
func NewCompletionGenerator(llm turnCompleter) *CompletionGenerator {
	return &CompletionGenerator{llm: llm}
}

func (g *CompletionGenerator) Name() string       { return BackendCompletion }
func (g *CompletionGenerator) NeedsThread() bool  { return false }
func (g *CompletionGenerator) NeedsHistory() bool { return true }

func (g *CompletionGenerator) Reply(ctx context.Context, req Request) (string, error) {
	return g.llm.GenerateWithTurns(ctx, req.History)
}

// Initial renders the tenant's initial template; no model call is made.
func (g *CompletionGenerator) Initial(_ context.Context, req InitialRequest) (string, error) {
	return renderTemplate(req)
}
