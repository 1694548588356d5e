// Package genai provides LLM operations on the OpenAI API: stateless chat
// completions (OpenAI or any compatible endpoint such as Groq) and
// assistant threads.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/LeadRelay/internal/models"
)

// Defaults follow the Groq-hosted deployment of the relay.
const (
	DefaultModel               = "llama-3.3-70b-versatile"
	DefaultTemperature         = 1.0
	DefaultMaxCompletionTokens = 512
	DefaultPollInterval        = 500 * time.Millisecond
)

// ErrNoChoicesReturned is returned when a completion carries no choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ErrNoAssistantConfigured is returned by RunAssistant without an assistant id.
var ErrNoAssistantConfigured = errors.New("assistant id not configured")

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// threadService defines the assistant-thread operations used by the relay.
type threadService interface {
	CreateThread(ctx context.Context) (string, error)
	AddUserMessage(ctx context.Context, threadID, content string) error
	Run(ctx context.Context, threadID, assistantID, instructions string) (string, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	AssistantID         string
	PollInterval        time.Duration
	DebugMode           bool
	StateDir            string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the chat completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxCompletionTokens bounds the generated reply length.
func WithMaxCompletionTokens(n int64) Option {
	return func(o *Opts) { o.MaxCompletionTokens = n }
}

// WithAssistantID sets the assistant used by RunAssistant.
func WithAssistantID(id string) Option {
	return func(o *Opts) { o.AssistantID = id }
}

// WithPollInterval sets how often assistant runs are polled.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// WithDebug writes every request/response pair under stateDir/debug.
func WithDebug(enabled bool, stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
		o.StateDir = stateDir
	}
}

// Client wraps the OpenAI chat completion and assistant thread services.
type Client struct {
	chat                chatService
	threads             threadService
	model               string
	temperature         float64
	maxCompletionTokens int64
	assistantID         string
	debugMode           bool
	stateDir            string
}

// NewClient initializes a GenAI client. The API key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:               DefaultModel,
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
		PollInterval:        DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("GenAI client created", "model", cfg.Model, "base_url_set", cfg.BaseURL != "", "assistant_set", cfg.AssistantID != "")

	return &Client{
		chat:                &completionsAdapter{svc: cli.Chat.Completions},
		threads:             &threadsAdapter{beta: cli.Beta, runs: &cli.Beta.Threads.Runs, pollInterval: cfg.PollInterval},
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
		assistantID:         cfg.AssistantID,
		debugMode:           cfg.DebugMode,
		stateDir:            cfg.StateDir,
	}, nil
}

// ChatMessages converts conversation turns to chat completion messages,
// preserving order and role.
func ChatMessages(turns []models.Turn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(t.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(t.Content))
		default:
			out = append(out, openai.UserMessage(t.Content))
		}
	}
	return out
}

// GenerateWithMessages runs a chat completion over the given message history
// and returns the first choice's content.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if c.temperature >= 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.maxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxCompletionTokens)
	}

	resp, err := c.chat.Create(ctx, params)
	c.writeDebug("GenerateWithMessages", params, resp, err)
	if err != nil {
		slog.Error("GenAI GenerateWithMessages failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("GenAI GenerateWithMessages succeeded", "model", c.model, "messages", len(messages), "reply_length", len(content))
	return content, nil
}

// GenerateWithTurns is GenerateWithMessages over conversation turns.
func (c *Client) GenerateWithTurns(ctx context.Context, turns []models.Turn) (string, error) {
	return c.GenerateWithMessages(ctx, ChatMessages(turns))
}

// CreateThread creates an empty assistant thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	id, err := c.threads.CreateThread(ctx)
	if err != nil {
		slog.Error("GenAI CreateThread failed", "error", err)
		return "", fmt.Errorf("create thread failed: %w", err)
	}
	slog.Debug("GenAI CreateThread succeeded", "thread_id", id)
	return id, nil
}

// RunAssistant optionally appends userMessage to the thread, runs the
// configured assistant and returns its latest reply. Instructions, when
// non-empty, are passed as additional run instructions.
func (c *Client) RunAssistant(ctx context.Context, threadID, userMessage, instructions string) (string, error) {
	if c.assistantID == "" {
		return "", ErrNoAssistantConfigured
	}
	if userMessage != "" {
		if err := c.threads.AddUserMessage(ctx, threadID, userMessage); err != nil {
			slog.Error("GenAI RunAssistant add message failed", "thread_id", threadID, "error", err)
			return "", fmt.Errorf("add message to thread %s failed: %w", threadID, err)
		}
	}
	reply, err := c.threads.Run(ctx, threadID, c.assistantID, instructions)
	if err != nil {
		slog.Error("GenAI RunAssistant run failed", "thread_id", threadID, "error", err)
		return "", fmt.Errorf("assistant run on thread %s failed: %w", threadID, err)
	}
	return strings.TrimSpace(reply), nil
}

// writeDebug dumps a request/response pair as JSON when debug mode is on.
// Failures are logged and otherwise ignored.
func (c *Client) writeDebug(method string, params interface{}, resp interface{}, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("GenAI debug dir create failed", "dir", dir, "error", err)
		return
	}
	entry := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"method":    method,
		"model":     c.model,
		"params":    params,
		"response":  resp,
	}
	if callErr != nil {
		entry["error"] = callErr.Error()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("GenAI debug marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%d.json", method, time.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("GenAI debug write failed", "error", err)
	}
}
