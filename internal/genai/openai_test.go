package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// fakeRunService returns queued statuses in order from Get.
type fakeRunService struct {
	created  openai.BetaThreadRunNewParams
	statuses []openai.RunStatus
	gets     int
	getErr   error
}

func (f *fakeRunService) New(ctx context.Context, threadID string, params openai.BetaThreadRunNewParams, opts ...option.RequestOption) (*openai.Run, error) {
	f.created = params
	return &openai.Run{ID: "run_1", ThreadID: threadID, Status: openai.RunStatusQueued}, nil
}

func (f *fakeRunService) Get(ctx context.Context, threadID string, runID string, opts ...option.RequestOption) (*openai.Run, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	status := f.statuses[f.gets]
	if f.gets < len(f.statuses)-1 {
		f.gets++
	}
	return &openai.Run{ID: runID, ThreadID: threadID, Status: status}, nil
}

func TestPollRun_UntilCompleted(t *testing.T) {
	runs := &fakeRunService{statuses: []openai.RunStatus{openai.RunStatusInProgress, openai.RunStatusInProgress, openai.RunStatusCompleted}}
	start, _ := runs.New(context.Background(), "thread_1", openai.BetaThreadRunNewParams{AssistantID: "asst_1"})

	run, err := pollRun(context.Background(), runs, "thread_1", start, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != openai.RunStatusCompleted || run.ID != "run_1" {
		t.Errorf("unexpected run: %s %s", run.ID, run.Status)
	}
	if runs.gets != 2 {
		t.Errorf("expected 3 polls ending on completed, got index %d", runs.gets)
	}
}

func TestPollRun_TerminalFailure(t *testing.T) {
	for _, status := range []openai.RunStatus{openai.RunStatusFailed, openai.RunStatusExpired, openai.RunStatusRequiresAction, openai.RunStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			runs := &fakeRunService{statuses: []openai.RunStatus{status}}
			start := &openai.Run{ID: "run_1", Status: openai.RunStatusQueued}

			_, err := pollRun(context.Background(), runs, "thread_1", start, time.Millisecond)
			if err == nil {
				t.Fatalf("expected error for status %s", status)
			}
		})
	}
}

func TestPollRun_ContextDone(t *testing.T) {
	runs := &fakeRunService{statuses: []openai.RunStatus{openai.RunStatusInProgress}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pollRun(ctx, runs, "thread_1", &openai.Run{ID: "run_1", Status: openai.RunStatusQueued}, 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPollRun_GetError(t *testing.T) {
	runs := &fakeRunService{getErr: errors.New("502 bad gateway")}

	_, err := pollRun(context.Background(), runs, "thread_1", &openai.Run{ID: "run_1", Status: openai.RunStatusInProgress}, time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected poll error, got %v", err)
	}
}

func TestPollRun_AlreadyCompleted(t *testing.T) {
	runs := &fakeRunService{}

	run, err := pollRun(context.Background(), runs, "thread_1", &openai.Run{ID: "run_1", Status: openai.RunStatusCompleted}, time.Hour)
	if err != nil || run.ID != "run_1" {
		t.Fatalf("expected immediate return, got %v %v", run, err)
	}
	if runs.gets != 0 {
		t.Errorf("completed run should not be polled")
	}
}
