package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/psaforge/copilot/internal/audit"
	"github.com/psaforge/copilot/internal/auth"
	"github.com/psaforge/copilot/internal/config"
	"github.com/psaforge/copilot/internal/gateway"
	"github.com/psaforge/copilot/internal/observability"
)

const maxCopilotBodyBytes = 1 << 20

type copilotRequest struct {
	Prompt json.RawMessage `json:"prompt"`
}

// copilotResponse carries every outcome. SQL and Error serialize as null
// when unset; Data is always an array.
type copilotResponse struct {
	SQL      *string          `json:"sql"`
	Data     []map[string]any `json:"data"`
	RowCount int              `json:"rowCount"`
	Message  string           `json:"message,omitempty"`
	Error    *string          `json:"error"`
	Details  string           `json:"details,omitempty"`
	Code     string           `json:"code,omitempty"`
	TraceID  string           `json:"traceId,omitempty"`
}

func handleCopilotQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if deps.Copilot == nil {
		writeCopilotError(w, r, &gateway.Error{Kind: gateway.KindConfigurationError, Message: "Copilot gateway is not configured"})
		return
	}
	caller, err := auth.Authorize(ctx, auth.RoleCopilotUser, cfg.Auth.DefaultTenant)
	if err != nil {
		writeJSON(w, http.StatusForbidden, failureResponse(r, "FORBIDDEN", err.Error(), "", ""))
		return
	}

	var req copilotRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCopilotBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeCopilotError(w, r, &gateway.Error{Kind: gateway.KindInvalidRequest, Message: "Invalid JSON body", Details: err.Error(), Err: err})
		return
	}

	prompt, err := gateway.Intake(req.Prompt)
	if err != nil {
		writeCopilotError(w, r, err)
		return
	}

	result, err := deps.Copilot.Ask(ctx, gateway.Request{
		Prompt:   prompt,
		TenantID: caller.TenantID,
		TraceID:  observability.TraceIDFromContext(ctx),
	})
	if err != nil {
		writeCopilotError(w, r, err)
		return
	}

	if result.HasRows() {
		sql := result.SQL
		writeJSON(w, http.StatusOK, copilotResponse{
			SQL:      &sql,
			Data:     nonNilRows(result.Rows),
			RowCount: result.RowCount,
		})
		return
	}
	writeJSON(w, http.StatusOK, copilotResponse{
		Data:    []map[string]any{},
		Message: result.Message,
	})
}

func writeCopilotError(w http.ResponseWriter, r *http.Request, err error) {
	gatewayErr := gateway.AsError(err)
	writeJSON(w, gatewayErr.HTTPStatus(), failureResponse(r, string(gatewayErr.Kind), gatewayErr.Message, gatewayErr.Details, gatewayErr.SQL))
}

func failureResponse(r *http.Request, code, message, details, sql string) copilotResponse {
	response := copilotResponse{
		Data:    []map[string]any{},
		Error:   &message,
		Details: details,
		Code:    code,
		TraceID: observability.TraceIDFromContext(r.Context()),
	}
	if sql != "" {
		response.SQL = &sql
	}
	return response
}

func nonNilRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}

func handleAuditList(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.AuditReader == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AUDIT_NOT_CONFIGURED", "audit log is not configured", nil)
		return
	}
	caller, err := auth.Authorize(r.Context(), auth.RoleCopilotUser, cfg.Auth.DefaultTenant)
	if err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		return
	}

	maxLimit := cfg.Gateway.AuditListLimit
	if maxLimit <= 0 {
		maxLimit = 50
	}
	limit := maxLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", map[string]any{"limit": raw})
			return
		}
		limit = min(parsed, maxLimit)
	}

	tenantID := caller.TenantID
	entries, err := deps.AuditReader.Recent(r.Context(), tenantID, limit)
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "list audit entries failed", "error", err)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "AUDIT_LIST_FAILED", "failed to list audit entries", nil)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"entries":   entries,
	})
}
