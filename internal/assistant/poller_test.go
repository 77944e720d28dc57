package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestPollerPendingThenTerminal(t *testing.T) {
	api := &fakeAPI{runs: []openai.Run{
		{Status: "in_progress"},
		{Status: "completed"},
	}}
	now := time.Unix(1000, 0)
	poller := NewPoller(api, "thread_1", "run_1", now.Add(time.Minute), func() time.Time { return now })

	outcome, err := poller.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollPending, outcome.State)
	require.Equal(t, RunStatusInProgress, outcome.Status)

	outcome, err = poller.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollTerminal, outcome.State)
	require.Equal(t, RunStatusCompleted, outcome.Status)
	require.Equal(t, 2, poller.Polls())
}

func TestPollerTimedOutSkipsFetch(t *testing.T) {
	api := &fakeAPI{}
	now := time.Unix(1000, 0)
	poller := NewPoller(api, "thread_1", "run_1", now, func() time.Time { return now })

	outcome, err := poller.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollTimedOut, outcome.State)
	require.Zero(t, api.callCount("retrieve_run"))
	require.Zero(t, poller.Remaining())
}

func TestPollerCarriesLastError(t *testing.T) {
	api := &fakeAPI{runs: []openai.Run{{
		Status:    "failed",
		LastError: &openai.RunLastError{Code: "rate_limit_exceeded", Message: "slow down"},
	}}}
	poller := NewPoller(api, "thread_1", "run_1", time.Now().Add(time.Minute), nil)

	outcome, err := poller.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollTerminal, outcome.State)
	require.Equal(t, RunStatusFailed, outcome.Status)
	require.Equal(t, "rate_limit_exceeded", outcome.ErrorCode)
	require.Equal(t, "slow down", outcome.ErrorMsg)
}

func TestPollerWrapsFetchError(t *testing.T) {
	api := &fakeAPI{pollErr: errors.New("connection reset")}
	poller := NewPoller(api, "thread_1", "run_1", time.Now().Add(time.Minute), nil)

	_, err := poller.Poll(context.Background())
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepPollRun, stepErr.Step)
}

func TestRunStatusTerminal(t *testing.T) {
	for _, status := range []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusExpired, RunStatusCancelled, RunStatusIncomplete} {
		require.True(t, status.Terminal(), status)
	}
	for _, status := range []RunStatus{RunStatusQueued, RunStatusInProgress, RunStatusRequiresAction, RunStatusCancelling} {
		require.False(t, status.Terminal(), status)
	}
}
