package assistant

import (
	"context"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

type fakeAPI struct {
	mu sync.Mutex

	threadErr  error
	messageErr error
	runErr     error
	pollErr    error
	listErr    error

	initialRun openai.Run
	runs       []openai.Run
	messages   []openai.Message

	calls        []string
	prompts      []string
	assistantIDs []string
	polls        int
}

func (f *fakeAPI) CreateThread(_ context.Context, _ openai.ThreadRequest) (openai.Thread, error) {
	f.record("create_thread")
	if f.threadErr != nil {
		return openai.Thread{}, f.threadErr
	}
	return openai.Thread{ID: "thread_1"}, nil
}

func (f *fakeAPI) CreateMessage(_ context.Context, _ string, request openai.MessageRequest) (openai.Message, error) {
	f.record("create_message")
	f.mu.Lock()
	f.prompts = append(f.prompts, request.Content)
	f.mu.Unlock()
	if f.messageErr != nil {
		return openai.Message{}, f.messageErr
	}
	return openai.Message{ID: "msg_user"}, nil
}

func (f *fakeAPI) CreateRun(_ context.Context, _ string, request openai.RunRequest) (openai.Run, error) {
	f.record("create_run")
	f.mu.Lock()
	f.assistantIDs = append(f.assistantIDs, request.AssistantID)
	f.mu.Unlock()
	if f.runErr != nil {
		return openai.Run{}, f.runErr
	}
	run := f.initialRun
	if run.ID == "" {
		run.ID = "run_1"
	}
	if run.Status == "" {
		run.Status = "queued"
	}
	return run, nil
}

func (f *fakeAPI) RetrieveRun(ctx context.Context, _ string, runID string) (openai.Run, error) {
	f.record("retrieve_run")
	if err := ctx.Err(); err != nil {
		return openai.Run{}, err
	}
	if f.pollErr != nil {
		return openai.Run{}, f.pollErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.polls
	f.polls++
	if len(f.runs) == 0 {
		return openai.Run{ID: runID, Status: "in_progress"}, nil
	}
	if idx >= len(f.runs) {
		idx = len(f.runs) - 1
	}
	run := f.runs[idx]
	run.ID = runID
	return run, nil
}

func (f *fakeAPI) ListMessage(_ context.Context, _ string, _ *int, _ *string, _ *string, _ *string, _ *string) (openai.MessagesList, error) {
	f.record("list_messages")
	if f.listErr != nil {
		return openai.MessagesList{}, f.listErr
	}
	return openai.MessagesList{Messages: f.messages}, nil
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.calls {
		if c == call {
			count++
		}
	}
	return count
}

func textMessage(role, text string, createdAt int) openai.Message {
	return openai.Message{
		ID:        "msg_" + role,
		Role:      role,
		CreatedAt: createdAt,
		Content: []openai.MessageContent{
			{Type: "text", Text: &openai.MessageText{Value: text}},
		},
	}
}
