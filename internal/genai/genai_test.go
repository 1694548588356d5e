package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/LeadRelay/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

// mockThreadService implements threadService for testing.
type mockThreadService struct {
	created      int
	messages     []string
	instructions string
	reply        string
	err          error
}

func (m *mockThreadService) CreateThread(ctx context.Context) (string, error) {
	m.created++
	return "thread_" + strings.Repeat("x", m.created), m.err
}

func (m *mockThreadService) AddUserMessage(ctx context.Context, threadID, content string) error {
	m.messages = append(m.messages, content)
	return m.err
}

func (m *mockThreadService) Run(ctx context.Context, threadID, assistantID, instructions string) (string, error) {
	m.instructions = instructions
	return m.reply, m.err
}

func completion(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGenerateWithMessages_Success(t *testing.T) {
	chat := &mockChatService{resp: completion("  Hello World \n")}
	client := &Client{chat: chat, model: "test-model", temperature: 1, maxCompletionTokens: 512}

	out, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got %q", out)
	}
	if string(chat.params.Model) != "test-model" {
		t.Errorf("expected model test-model, got %q", chat.params.Model)
	}
	if len(chat.params.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(chat.params.Messages))
	}
}

func TestGenerateWithMessages_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GenerateWithMessages(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateWithMessages_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}}}
	_, err := client.GenerateWithMessages(context.Background(), nil)
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestChatMessages_PreservesOrder(t *testing.T) {
	turns := []models.Turn{
		{Role: models.RoleSystem, Content: "be brief"},
		{Role: models.RoleAssistant, Content: "Hi Ana"},
		{Role: models.RoleUser, Content: "Hello"},
	}
	msgs := ChatMessages(turns)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].OfSystem == nil || msgs[1].OfAssistant == nil || msgs[2].OfUser == nil {
		t.Errorf("roles not preserved: %+v", msgs)
	}
}

func TestRunAssistant(t *testing.T) {
	threads := &mockThreadService{reply: " Sure, tomorrow works. "}
	client := &Client{threads: threads, assistantID: "asst_1"}

	out, err := client.RunAssistant(context.Background(), "thread_1", "Can we talk tomorrow?", "")
	if err != nil {
		t.Fatalf("RunAssistant: %v", err)
	}
	if out != "Sure, tomorrow works." {
		t.Errorf("unexpected reply %q", out)
	}
	if len(threads.messages) != 1 || threads.messages[0] != "Can we talk tomorrow?" {
		t.Errorf("user message not appended: %v", threads.messages)
	}

	// No user message: run only, with instructions.
	_, _ = client.RunAssistant(context.Background(), "thread_1", "", "Greet Ana")
	if len(threads.messages) != 1 || threads.instructions != "Greet Ana" {
		t.Errorf("unexpected calls: messages=%v instructions=%q", threads.messages, threads.instructions)
	}
}

func TestRunAssistant_NoAssistant(t *testing.T) {
	client := &Client{threads: &mockThreadService{}}
	if _, err := client.RunAssistant(context.Background(), "t", "hi", ""); !errors.Is(err, ErrNoAssistantConfigured) {
		t.Fatalf("expected ErrNoAssistantConfigured, got %v", err)
	}
}

func TestCreateThread(t *testing.T) {
	threads := &mockThreadService{}
	client := &Client{threads: threads}
	id, err := client.CreateThread(context.Background())
	if err != nil || id == "" {
		t.Fatalf("CreateThread = %q, %v", id, err)
	}
	threads.err = errors.New("quota")
	if _, err := client.CreateThread(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithBaseURL("https://api.groq.com/openai/v1"), WithModel("llama"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.model != "llama" {
		t.Errorf("expected model llama, got %q", cli.model)
	}
	if cli.temperature != DefaultTemperature || cli.maxCompletionTokens != DefaultMaxCompletionTokens {
		t.Errorf("defaults not applied: %+v", cli)
	}
}
