package assistant

import (
	"context"
	"time"
)

type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusExpired        RunStatus = "expired"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Terminal reports whether the run will not change status again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusExpired, RunStatusCancelled, RunStatusIncomplete:
		return true
	default:
		return false
	}
}

type PollState int

const (
	PollPending PollState = iota
	PollTerminal
	PollTimedOut
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollTerminal:
		return "terminal"
	case PollTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

type PollOutcome struct {
	State     PollState
	Status    RunStatus
	ErrorCode string
	ErrorMsg  string
}

// Poller tracks one run against a fixed deadline. Poll performs exactly one
// transition; waiting between transitions is the caller's job.
type Poller struct {
	api      API
	threadID string
	runID    string
	deadline time.Time
	now      func() time.Time

	polls  int
	status RunStatus
}

func NewPoller(api API, threadID, runID string, deadline time.Time, now func() time.Time) *Poller {
	if now == nil {
		now = time.Now
	}
	return &Poller{
		api:      api,
		threadID: threadID,
		runID:    runID,
		deadline: deadline,
		now:      now,
		status:   RunStatusQueued,
	}
}

func (p *Poller) Poll(ctx context.Context) (PollOutcome, error) {
	if !p.now().Before(p.deadline) {
		return PollOutcome{State: PollTimedOut, Status: p.status}, nil
	}

	run, err := p.api.RetrieveRun(ctx, p.threadID, p.runID)
	p.polls++
	if err != nil {
		return PollOutcome{}, newStepError(StepPollRun, err)
	}

	p.status = RunStatus(run.Status)
	outcome := PollOutcome{State: PollPending, Status: p.status}
	if p.status.Terminal() {
		outcome.State = PollTerminal
		if run.LastError != nil {
			outcome.ErrorCode = string(run.LastError.Code)
			outcome.ErrorMsg = run.LastError.Message
		}
	}
	return outcome, nil
}

func (p *Poller) Polls() int {
	return p.polls
}

func (p *Poller) Status() RunStatus {
	return p.status
}

// Remaining is the time left before the deadline, never negative.
func (p *Poller) Remaining() time.Duration {
	remaining := p.deadline.Sub(p.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
