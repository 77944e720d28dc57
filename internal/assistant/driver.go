package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/psaforge/copilot/internal/observability"
)

type Config struct {
	AssistantID  string
	PollInterval time.Duration
	RunTimeout   time.Duration
}

// Reply is the assistant's final answer for one prompt.
type Reply struct {
	ThreadID    string
	RunID       string
	Text        string
	Polls       int
	RunDuration time.Duration
}

// Driver runs one prompt through a fresh thread: create thread, attach the
// prompt, start a run, poll it to a terminal status, read the newest
// assistant message. Threads are never reused.
type Driver struct {
	api          API
	assistantID  string
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewDriver(api API, cfg Config, logger *slog.Logger) *Driver {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		api:          api,
		assistantID:  strings.TrimSpace(cfg.AssistantID),
		pollInterval: interval,
		runTimeout:   timeout,
		logger:       logger,
		now:          time.Now,
	}
}

func (d *Driver) Ask(ctx context.Context, prompt string) (Reply, error) {
	traceID := observability.TraceIDFromContext(ctx)

	thread, err := d.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return Reply{}, newStepError(StepCreateThread, err)
	}
	reply := Reply{ThreadID: thread.ID}

	if _, err := d.api.CreateMessage(ctx, thread.ID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}); err != nil {
		return reply, newStepError(StepCreateMessage, err)
	}

	run, err := d.api.CreateRun(ctx, thread.ID, openai.RunRequest{AssistantID: d.assistantID})
	if err != nil {
		return reply, newStepError(StepCreateRun, err)
	}
	reply.RunID = run.ID
	d.logger.DebugContext(ctx, "assistant run started",
		slog.String("trace_id", traceID),
		slog.String("thread_id", thread.ID),
		slog.String("run_id", run.ID),
	)

	started := d.now()
	poller := NewPoller(d.api, thread.ID, run.ID, started.Add(d.runTimeout), d.now)
	outcome, err := d.awaitRun(ctx, poller, RunStatus(run.Status))
	reply.Polls = poller.Polls()
	reply.RunDuration = d.now().Sub(started)
	if err != nil {
		return reply, err
	}
	observability.ObserveAssistantRun(string(outcome.Status), reply.Polls, reply.RunDuration)

	switch {
	case outcome.State == PollTimedOut:
		return reply, &TimeoutError{RunID: run.ID, LastStatus: outcome.Status, Polls: reply.Polls, Elapsed: reply.RunDuration}
	case outcome.Status != RunStatusCompleted:
		return reply, &RunError{RunID: run.ID, Status: outcome.Status, Code: outcome.ErrorCode, Message: outcome.ErrorMsg}
	}

	text, err := d.latestAssistantText(ctx, thread.ID)
	if err != nil {
		return reply, err
	}
	reply.Text = text
	d.logger.DebugContext(ctx, "assistant run completed",
		slog.String("trace_id", traceID),
		slog.String("run_id", run.ID),
		slog.Int("polls", reply.Polls),
		slog.String("duration", reply.RunDuration.String()),
	)
	return reply, nil
}

// awaitRun drives the poller until it leaves PollPending. The context
// aborts both the wait and the in-flight status request.
func (d *Driver) awaitRun(ctx context.Context, poller *Poller, initial RunStatus) (PollOutcome, error) {
	if initial.Terminal() {
		return poller.Poll(ctx)
	}
	for {
		wait := d.pollInterval
		if remaining := poller.Remaining(); remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return PollOutcome{}, newStepError(StepPollRun, ctx.Err())
		case <-timer.C:
		}

		outcome, err := poller.Poll(ctx)
		if err != nil {
			return PollOutcome{}, err
		}
		if outcome.State != PollPending {
			return outcome, nil
		}
	}
}

func (d *Driver) latestAssistantText(ctx context.Context, threadID string) (string, error) {
	order := "desc"
	list, err := d.api.ListMessage(ctx, threadID, nil, &order, nil, nil, nil)
	if err != nil {
		return "", newStepError(StepListMessages, err)
	}

	var latest *openai.Message
	for i := range list.Messages {
		message := &list.Messages[i]
		if message.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		if latest == nil || message.CreatedAt > latest.CreatedAt {
			latest = message
		}
	}
	if latest == nil {
		return "", &StepError{Step: StepListMessages, Message: "no assistant response found"}
	}

	var parts []string
	for _, content := range latest.Content {
		if content.Text != nil {
			parts = append(parts, content.Text.Value)
		}
	}
	return strings.Join(parts, "\n"), nil
}
