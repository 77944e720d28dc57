package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDriver(api API) *Driver {
	return NewDriver(api, Config{
		AssistantID:  "asst_test",
		PollInterval: time.Millisecond,
		RunTimeout:   time.Second,
	}, nil)
}

func TestDriverAskReturnsLatestAssistantReply(t *testing.T) {
	api := &fakeAPI{
		runs: []openai.Run{{Status: "in_progress"}, {Status: "completed"}},
		messages: []openai.Message{
			textMessage("user", "Show all clients", 10),
			textMessage("assistant", "older answer", 11),
			textMessage("assistant", "```sql\nSELECT * FROM clients\n```", 12),
		},
	}

	reply, err := testDriver(api).Ask(context.Background(), "Show all clients")
	require.NoError(t, err)
	require.Equal(t, "thread_1", reply.ThreadID)
	require.Equal(t, "run_1", reply.RunID)
	require.Equal(t, "```sql\nSELECT * FROM clients\n```", reply.Text)
	require.Equal(t, 2, reply.Polls)
	require.Equal(t, []string{"Show all clients"}, api.prompts)
	require.Equal(t, []string{"asst_test"}, api.assistantIDs)
}

func TestDriverAskFailsOnEachStep(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		api  *fakeAPI
		step Step
	}{
		{name: "thread", api: &fakeAPI{threadErr: boom}, step: StepCreateThread},
		{name: "message", api: &fakeAPI{messageErr: boom}, step: StepCreateMessage},
		{name: "run", api: &fakeAPI{runErr: boom}, step: StepCreateRun},
		{name: "poll", api: &fakeAPI{pollErr: boom}, step: StepPollRun},
		{name: "list", api: &fakeAPI{runs: []openai.Run{{Status: "completed"}}, listErr: boom}, step: StepListMessages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testDriver(tt.api).Ask(context.Background(), "prompt")
			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			require.Equal(t, tt.step, stepErr.Step)
			require.ErrorIs(t, err, boom)
			require.Equal(t, "Failed to complete assistant "+string(tt.step), stepErr.Summary())
		})
	}
}

func TestDriverAskNoAssistantMessage(t *testing.T) {
	api := &fakeAPI{
		runs:     []openai.Run{{Status: "completed"}},
		messages: []openai.Message{textMessage("user", "hello", 1)},
	}
	_, err := testDriver(api).Ask(context.Background(), "hello")
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepListMessages, stepErr.Step)
	require.Equal(t, "no assistant response found", stepErr.Message)
	require.Equal(t, "Assistant message retrieval failed: no assistant response found", stepErr.Summary())
}

func TestDriverAskTerminalFailureSkipsMessages(t *testing.T) {
	for _, status := range []string{"failed", "expired", "cancelled"} {
		t.Run(status, func(t *testing.T) {
			api := &fakeAPI{runs: []openai.Run{{Status: openai.RunStatus(status)}}}
			_, err := testDriver(api).Ask(context.Background(), "prompt")
			var runErr *RunError
			require.ErrorAs(t, err, &runErr)
			require.Equal(t, RunStatus(status), runErr.Status)
			require.Equal(t, "Assistant run "+status, runErr.Summary())
			require.Zero(t, api.callCount("list_messages"))
		})
	}
}

func TestRunErrorSummary(t *testing.T) {
	tests := []struct {
		err  RunError
		want string
	}{
		{RunError{Status: RunStatusFailed, Code: "rate_limit_exceeded", Message: "limit"}, quotaMessage},
		{RunError{Status: RunStatusFailed, Code: "server_error", Message: "You exceeded your current quota"}, quotaMessage},
		{RunError{Status: RunStatusFailed, Code: "invalid_prompt", Message: "prompt rejected"}, "prompt rejected"},
		{RunError{Status: RunStatusExpired, Code: "server_error", Message: "oops"}, "Assistant run expired: server_error - oops"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.err.Summary())
	}
}

func TestDriverAskTerminalFromCreateRun(t *testing.T) {
	api := &fakeAPI{
		initialRun: openai.Run{Status: "completed"},
		runs:       []openai.Run{{Status: "completed"}},
		messages:   []openai.Message{textMessage("assistant", "done", 1)},
	}
	reply, err := testDriver(api).Ask(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "done", reply.Text)
	require.Equal(t, 1, reply.Polls)
}

func TestDriverAskTimesOutWithoutFurtherPolling(t *testing.T) {
	api := &fakeAPI{}
	driver := NewDriver(api, Config{
		AssistantID:  "asst_test",
		PollInterval: 5 * time.Millisecond,
		RunTimeout:   30 * time.Millisecond,
	}, nil)

	_, err := driver.Ask(context.Background(), "prompt")
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, RunStatusInProgress, timeoutErr.LastStatus)

	polls := api.callCount("retrieve_run")
	require.Equal(t, polls, timeoutErr.Polls)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, polls, api.callCount("retrieve_run"))
	require.Zero(t, api.callCount("list_messages"))
}

func TestDriverAskStopsOnContextCancel(t *testing.T) {
	api := &fakeAPI{}
	driver := NewDriver(api, Config{
		AssistantID:  "asst_test",
		PollInterval: 10 * time.Millisecond,
		RunTimeout:   10 * time.Second,
	}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := driver.Ask(ctx, "prompt")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(started), 2*time.Second)
}

func TestDriverAgainstAssistantsHTTPAPI(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("OpenAI-Beta"), "assistants=")
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		writeTestJSON(w, http.StatusOK, map[string]any{"id": "thread_abc", "object": "thread", "created_at": 1})
	})
	mux.HandleFunc("POST /v1/threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user", body["role"])
		assert.Equal(t, "Show all clients", body["content"])
		writeTestJSON(w, http.StatusOK, map[string]any{"id": "msg_1", "object": "thread.message", "role": "user"})
	})
	mux.HandleFunc("POST /v1/threads/thread_abc/runs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asst_live", body["assistant_id"])
		writeTestJSON(w, http.StatusOK, map[string]any{"id": "run_abc", "object": "thread.run", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/threads/thread_abc/runs/run_abc", func(w http.ResponseWriter, _ *http.Request) {
		status := "in_progress"
		if polls.Add(1) >= 2 {
			status = "completed"
		}
		writeTestJSON(w, http.StatusOK, map[string]any{"id": "run_abc", "object": "thread.run", "status": status})
	})
	mux.HandleFunc("GET /v1/threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"data": []map[string]any{
				{
					"id":         "msg_2",
					"object":     "thread.message",
					"role":       "assistant",
					"created_at": 20,
					"content": []map[string]any{
						{"type": "text", "text": map[string]any{"value": "```sql\nSELECT * FROM clients\n```", "annotations": []any{}}},
					},
				},
				{
					"id":         "msg_1",
					"object":     "thread.message",
					"role":       "user",
					"created_at": 10,
					"content": []map[string]any{
						{"type": "text", "text": map[string]any{"value": "Show all clients", "annotations": []any{}}},
					},
				},
			},
			"has_more": false,
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1/", RequestTimeout: time.Second})
	driver := NewDriver(client, Config{AssistantID: "asst_live", PollInterval: time.Millisecond, RunTimeout: 5 * time.Second}, nil)

	reply, err := driver.Ask(context.Background(), "Show all clients")
	require.NoError(t, err)
	require.Equal(t, "```sql\nSELECT * FROM clients\n```", reply.Text)
	require.Equal(t, int32(2), polls.Load())
}

func TestDriverMapsUpstreamQuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{
				"message": "You exceeded your current quota",
				"type":    "insufficient_quota",
				"code":    "insufficient_quota",
			},
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1", RequestTimeout: time.Second})
	_, err := NewDriver(client, Config{AssistantID: "asst"}, nil).Ask(context.Background(), "prompt")

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepCreateThread, stepErr.Step)
	require.Equal(t, http.StatusTooManyRequests, stepErr.StatusCode)
	require.True(t, stepErr.QuotaExceeded())
	require.Equal(t, quotaMessage, stepErr.Summary())
	require.True(t, strings.Contains(stepErr.Error(), "status 429"))
}

func TestCredentialsValidate(t *testing.T) {
	require.NoError(t, Credentials{APIKey: "sk", AssistantID: "asst"}.Validate())
	require.EqualError(t, Credentials{APIKey: "sk"}.Validate(), "OPENAI_ASSISTANT_ID not configured")
	require.EqualError(t, Credentials{}.Validate(), "OPENAI_API_KEY and OPENAI_ASSISTANT_ID not configured")
}

func writeTestJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
