package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/psaforge/copilot/internal/assistant"
	"github.com/psaforge/copilot/internal/audit"
	"github.com/psaforge/copilot/internal/nl2sql"
	"github.com/psaforge/copilot/internal/observability"
	"github.com/psaforge/copilot/internal/query"
)

const policyRejectionMessage = "Query contains forbidden operations. Please rephrase your question."

type Assistant interface {
	Ask(ctx context.Context, prompt string) (assistant.Reply, error)
}

type Deps struct {
	Assistant Assistant
	Executor  query.Executor
	Audit     audit.Recorder
	Logger    *slog.Logger
}

// Options: RequestTimeout bounds the whole pipeline of one Ask; expiry is
// reported as a Timeout. AuditTimeout bounds the audit write, which runs
// even when the request context is already done.
type Options struct {
	Credentials    assistant.Credentials
	MaxPromptChars int
	RequestTimeout time.Duration
	AuditTimeout   time.Duration
}

type Request struct {
	Prompt   string
	TenantID string
	TraceID  string
}

// Result is either rows with the SQL that produced them, or a text message
// when the assistant answered without SQL.
type Result struct {
	SQL      string
	Columns  []string
	Rows     []map[string]any
	RowCount int
	Message  string
}

func (r Result) HasRows() bool {
	return r.SQL != ""
}

// Service runs the request pipeline: intake, assistant, extraction,
// validation, execution. It holds no per-request state.
type Service struct {
	assistant      Assistant
	executor       query.Executor
	audit          audit.Recorder
	logger         *slog.Logger
	maxPromptChars int
	requestTimeout time.Duration
	auditTimeout   time.Duration
	configErr      error
	now            func() time.Time
}

func New(deps Deps, opts Options) (*Service, error) {
	if deps.Assistant == nil {
		return nil, fmt.Errorf("assistant is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	recorder := deps.Audit
	if recorder == nil {
		recorder = audit.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	auditTimeout := opts.AuditTimeout
	if auditTimeout <= 0 {
		auditTimeout = 2 * time.Second
	}
	return &Service{
		assistant:      deps.Assistant,
		executor:       deps.Executor,
		audit:          recorder,
		logger:         logger,
		maxPromptChars: opts.MaxPromptChars,
		requestTimeout: opts.RequestTimeout,
		auditTimeout:   auditTimeout,
		configErr:      opts.Credentials.Validate(),
		now:            time.Now,
	}, nil
}

// ConfigError reports missing assistant credentials, or nil.
func (s *Service) ConfigError() error {
	return s.configErr
}

func (s *Service) Ask(ctx context.Context, request Request) (Result, error) {
	start := s.now()
	prompt := strings.TrimSpace(request.Prompt)

	runCtx := ctx
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	result, err := s.ask(runCtx, prompt, request.TenantID)
	s.finish(ctx, request, prompt, result, err, s.now().Sub(start))
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (s *Service) ask(ctx context.Context, prompt, tenantID string) (Result, error) {
	if prompt == "" {
		return Result{}, invalidRequest(promptRequired)
	}
	if s.maxPromptChars > 0 && utf8.RuneCountInString(prompt) > s.maxPromptChars {
		return Result{}, invalidRequest(fmt.Sprintf("prompt exceeds %d characters", s.maxPromptChars))
	}
	if s.configErr != nil {
		return Result{}, &Error{
			Kind:    KindConfigurationError,
			Message: "Assistant is not configured",
			Details: s.configErr.Error(),
			Err:     s.configErr,
		}
	}

	reply, err := s.assistant.Ask(ctx, prompt)
	if err != nil {
		return Result{}, classifyAssistantError(ctx, err)
	}

	statement, found := nl2sql.ExtractSQL(reply.Text)
	if !found {
		message := strings.TrimSpace(reply.Text)
		if message == "" {
			return Result{}, &Error{Kind: KindUpstreamError, Message: "Assistant returned an empty response"}
		}
		return Result{Rows: []map[string]any{}, Message: reply.Text}, nil
	}

	cleaned, err := nl2sql.Validate(statement)
	if err != nil {
		var violation *nl2sql.PolicyViolation
		if errors.As(err, &violation) {
			observability.IncrementPolicyRejection(violation.Rule)
		}
		return Result{}, &Error{
			Kind:    KindPolicyRejection,
			Message: policyRejectionMessage,
			Details: err.Error(),
			SQL:     cleaned,
			Err:     err,
		}
	}

	executed, err := s.executor.Execute(ctx, query.Request{SQL: cleaned, TenantID: tenantID})
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return Result{}, &Error{Kind: KindTimeout, Message: "Query timed out", Details: err.Error(), SQL: cleaned, Err: err}
		}
		return Result{}, &Error{Kind: KindDatabaseError, Message: "Database query failed", Details: err.Error(), SQL: cleaned, Err: err}
	}

	rows := executed.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	observability.ObserveExecutedRows(len(rows))
	return Result{
		SQL:      cleaned,
		Columns:  executed.Columns,
		Rows:     rows,
		RowCount: len(rows),
	}, nil
}

func classifyAssistantError(ctx context.Context, err error) *Error {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "Request deadline exceeded while waiting for the assistant", Details: err.Error(), Err: err}
	case errors.Is(ctxErr, context.Canceled):
		return &Error{Kind: KindUpstreamError, Message: "Request cancelled", Details: err.Error(), Err: err}
	}

	var (
		timeoutErr *assistant.TimeoutError
		runErr     *assistant.RunError
		stepErr    *assistant.StepError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return &Error{Kind: KindTimeout, Message: "Assistant run timed out", Details: timeoutErr.Error(), Err: err}
	case errors.As(err, &runErr):
		return &Error{Kind: KindUpstreamError, Message: runErr.Summary(), Details: runErr.Error(), Err: err}
	case errors.As(err, &stepErr):
		return &Error{Kind: KindUpstreamError, Message: stepErr.Summary(), Details: stepErr.Error(), Err: err}
	default:
		return &Error{Kind: KindUpstreamError, Message: "Assistant request failed", Details: err.Error(), Err: err}
	}
}

// finish records the outcome in metrics, logs and the audit log. Audit
// failures are logged only.
func (s *Service) finish(ctx context.Context, request Request, prompt string, result Result, err error, elapsed time.Duration) {
	entry := audit.Entry{
		TraceID:   request.TraceID,
		TenantID:  request.TenantID,
		Prompt:    prompt,
		Duration:  elapsed,
		CreatedAt: s.now().UTC(),
	}
	attrs := []slog.Attr{
		slog.String("trace_id", request.TraceID),
		slog.String("tenant_id", request.TenantID),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	}

	switch {
	case err != nil:
		gatewayErr := AsError(err)
		entry.Outcome = audit.OutcomeError
		entry.ErrorKind = string(gatewayErr.Kind)
		entry.SQL = gatewayErr.SQL
		observability.ObserveGatewayOutcome(string(gatewayErr.Kind), elapsed)
		attrs = append(attrs,
			slog.String("outcome", audit.OutcomeError),
			slog.String("kind", string(gatewayErr.Kind)),
			slog.String("details", gatewayErr.Details),
		)
		level := slog.LevelError
		if gatewayErr.HTTPStatus() < 500 {
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(ctx, level, "copilot query failed", attrs...)
	case result.HasRows():
		entry.Outcome = audit.OutcomeRows
		entry.SQL = result.SQL
		entry.RowCount = result.RowCount
		observability.ObserveGatewayOutcome(audit.OutcomeRows, elapsed)
		attrs = append(attrs, slog.String("outcome", audit.OutcomeRows), slog.Int("row_count", result.RowCount))
		s.logger.LogAttrs(ctx, slog.LevelInfo, "copilot query completed", attrs...)
	default:
		entry.Outcome = audit.OutcomeMessage
		observability.ObserveGatewayOutcome(audit.OutcomeMessage, elapsed)
		attrs = append(attrs, slog.String("outcome", audit.OutcomeMessage))
		s.logger.LogAttrs(ctx, slog.LevelInfo, "copilot query completed", attrs...)
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
	defer cancel()
	if recordErr := s.audit.Record(auditCtx, entry); recordErr != nil {
		s.logger.WarnContext(ctx, "audit record failed",
			slog.String("trace_id", request.TraceID),
			slog.String("error", recordErr.Error()),
		)
	}
}
