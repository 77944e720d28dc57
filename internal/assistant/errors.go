package assistant

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type Step string

const (
	StepCreateThread  Step = "thread creation"
	StepCreateMessage Step = "message creation"
	StepCreateRun     Step = "run creation"
	StepPollRun       Step = "run status check"
	StepListMessages  Step = "message retrieval"
)

const quotaMessage = "OpenAI quota exceeded. Please check your billing and usage limits."

// StepError reports a failed call against the assistant API.
type StepError struct {
	Step       Step
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *StepError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("assistant %s failed (status %d): %s", e.Step, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("assistant %s failed: %s", e.Step, e.Message)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// QuotaExceeded reports upstream rate limiting or exhausted credit.
func (e *StepError) QuotaExceeded() bool {
	return e.StatusCode == http.StatusTooManyRequests || isQuotaCode(e.Code) || isQuotaCode(e.Message)
}

// Summary is the caller-facing message for the failure.
func (e *StepError) Summary() string {
	if e.QuotaExceeded() {
		return quotaMessage
	}
	if e.Err == nil && e.StatusCode == 0 && e.Message != "" {
		// The call succeeded but the response was unusable.
		return fmt.Sprintf("Assistant %s failed: %s", e.Step, e.Message)
	}
	return fmt.Sprintf("Failed to complete assistant %s", e.Step)
}

func newStepError(step Step, err error) *StepError {
	stepErr := &StepError{Step: step, Err: err, Message: err.Error()}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		stepErr.StatusCode = apiErr.HTTPStatusCode
		stepErr.Message = apiErr.Message
		if apiErr.Code != nil {
			stepErr.Code = fmt.Sprint(apiErr.Code)
		}
		if stepErr.Code == "" {
			stepErr.Code = apiErr.Type
		}
	case errors.As(err, &reqErr):
		stepErr.StatusCode = reqErr.HTTPStatusCode
		if len(reqErr.Body) > 0 {
			stepErr.Message = strings.TrimSpace(string(reqErr.Body))
		}
	}
	return stepErr
}

// RunError reports a run that reached failed, expired, cancelled or
// incomplete.
type RunError struct {
	RunID   string
	Status  RunStatus
	Code    string
	Message string
}

func (e *RunError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("assistant run %s", e.Status)
	}
	return fmt.Sprintf("assistant run %s: %s - %s", e.Status, e.Code, e.Message)
}

func (e *RunError) QuotaExceeded() bool {
	return isQuotaCode(e.Code) || isQuotaCode(e.Message)
}

// Summary maps the upstream last_error to the caller-facing message.
func (e *RunError) Summary() string {
	switch {
	case e.QuotaExceeded():
		return quotaMessage
	case strings.HasPrefix(e.Code, "invalid_") && e.Message != "":
		return e.Message
	case e.Code == "" && e.Message == "":
		return fmt.Sprintf("Assistant run %s", e.Status)
	default:
		return fmt.Sprintf("Assistant run %s: %s - %s", e.Status, e.Code, e.Message)
	}
}

// TimeoutError reports a run that never reached a terminal status before
// the deadline.
type TimeoutError struct {
	RunID      string
	LastStatus RunStatus
	Polls      int
	Elapsed    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("assistant run timed out after %s (last status %s, %d polls)", e.Elapsed.Round(time.Millisecond), e.LastStatus, e.Polls)
}

func isQuotaCode(value string) bool {
	lower := strings.ToLower(value)
	return strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota")
}
