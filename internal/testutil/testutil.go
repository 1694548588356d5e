// Package testutil provides fakes and fixtures shared by LeadRelay tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/BTreeMap/LeadRelay/internal/models"
	"github.com/BTreeMap/LeadRelay/internal/reply"
)

// FakeGenerator is a scripted reply.Generator that records every call.
type FakeGenerator struct {
	Thread  bool
	History bool
	// ReplyText is returned by Reply; ReplyErr takes precedence.
	ReplyText string
	ReplyErr  error
	// InitialFunc, when set, overrides Initial. Otherwise the tenant template
	// is rendered, or InitialText returned when there is none.
	InitialFunc func(req reply.InitialRequest) (string, error)
	InitialText string

	mu       sync.Mutex
	Requests []reply.Request
	Initials []reply.InitialRequest
}

// Compile-time check that FakeGenerator implements reply.Generator.
var _ reply.Generator = (*FakeGenerator)(nil)

func (g *FakeGenerator) Name() string       { return "fake" }
func (g *FakeGenerator) NeedsThread() bool  { return g.Thread }
func (g *FakeGenerator) NeedsHistory() bool { return g.History }

func (g *FakeGenerator) Reply(_ context.Context, req reply.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.ReplyErr != nil {
		return "", g.ReplyErr
	}
	return g.ReplyText, nil
}

func (g *FakeGenerator) Initial(_ context.Context, req reply.InitialRequest) (string, error) {
	g.mu.Lock()
	g.Initials = append(g.Initials, req)
	g.mu.Unlock()
	if g.InitialFunc != nil {
		return g.InitialFunc(req)
	}
	if req.Template != nil {
		return req.Template.Render(req.Lead.FirstName), nil
	}
	return g.InitialText, nil
}

// ReplyCalls returns how many times Reply was called.
func (g *FakeGenerator) ReplyCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}

// LastRequest returns the most recent Reply request.
func (g *FakeGenerator) LastRequest() reply.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Requests) == 0 {
		return reply.Request{}
	}
	return g.Requests[len(g.Requests)-1]
}

// FakeThreads hands out sequential thread ids, optionally after a delay.
type FakeThreads struct {
	Delay time.Duration
	Err   error
	calls atomic.Int64
}

// Compile-time check that FakeThreads implements reply.ThreadCreator.
var _ reply.ThreadCreator = (*FakeThreads)(nil)

func (f *FakeThreads) CreateThread(ctx context.Context) (string, error) {
	n := f.calls.Add(1)
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.Err != nil {
		return "", f.Err
	}
	return fmt.Sprintf("thread_%d", n), nil
}

// Calls returns how many threads were requested.
func (f *FakeThreads) Calls() int {
	return int(f.calls.Load())
}

// FakePhone returns a random North American E.164 number.
func FakePhone() string {
	return gofakeit.Numerify("+1555#######")
}

// NewPendingLead returns a staged lead with random attributes.
func NewPendingLead(tenantID string) models.PendingLead {
	return models.PendingLead{
		ID:        gofakeit.UUID(),
		Phone:     FakePhone(),
		FirstName: gofakeit.FirstName(),
		TenantID:  tenantID,
		CreatedAt: time.Now().UTC(),
	}
}

// NewLead returns a lead with random attributes and no thread.
func NewLead(tenantID string) models.Lead {
	return models.Lead{
		ID:        gofakeit.UUID(),
		Phone:     FakePhone(),
		FirstName: gofakeit.FirstName(),
		TenantID:  tenantID,
		CreatedAt: time.Now().UTC(),
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
