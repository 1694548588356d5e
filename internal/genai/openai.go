package genai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// completionsAdapter adapts the SDK completion service to chatService.
type completionsAdapter struct {
	svc openai.ChatCompletionService
}

func (a *completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// runService is the subset of the SDK run service used to start and poll runs.
type runService interface {
	New(ctx context.Context, threadID string, params openai.BetaThreadRunNewParams, opts ...option.RequestOption) (*openai.Run, error)
	Get(ctx context.Context, threadID string, runID string, opts ...option.RequestOption) (*openai.Run, error)
}

// threadsAdapter implements threadService on the SDK assistants beta API.
type threadsAdapter struct {
	beta         openai.BetaService
	runs         runService
	pollInterval time.Duration
}

func (a *threadsAdapter) CreateThread(ctx context.Context) (string, error) {
	thread, err := a.beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

func (a *threadsAdapter) AddUserMessage(ctx context.Context, threadID, content string) error {
	_, err := a.beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(content),
		},
	})
	return err
}

func (a *threadsAdapter) Run(ctx context.Context, threadID, assistantID, instructions string) (string, error) {
	params := openai.BetaThreadRunNewParams{AssistantID: assistantID}
	if instructions != "" {
		params.AdditionalInstructions = openai.String(instructions)
	}
	run, err := a.runs.New(ctx, threadID, params)
	if err != nil {
		return "", err
	}
	run, err = pollRun(ctx, a.runs, threadID, run, a.pollInterval)
	if err != nil {
		return "", err
	}

	page, err := a.beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(1),
		RunID: openai.String(run.ID),
	})
	if err != nil {
		return "", err
	}
	for _, msg := range page.Data {
		if msg.Role != openai.MessageRoleAssistant {
			continue
		}
		var b strings.Builder
		for _, part := range msg.Content {
			if part.Type == "text" {
				b.WriteString(part.Text.Value)
			}
		}
		return b.String(), nil
	}
	return "", nil
}

// pollRun fetches run every interval until it reaches a terminal status.
// Only a completed run is returned without error.
func pollRun(ctx context.Context, runs runService, threadID string, run *openai.Run, interval time.Duration) (*openai.Run, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		case openai.RunStatusFailed:
			return nil, fmt.Errorf("run %s failed: %s", run.ID, run.LastError.Message)
		default:
			return nil, fmt.Errorf("run %s finished with status %s", run.ID, run.Status)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("run %s not finished: %w", run.ID, ctx.Err())
		case <-ticker.C:
		}
		next, err := runs.Get(ctx, threadID, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll run %s: %w", run.ID, err)
		}
		run = next
	}
}
