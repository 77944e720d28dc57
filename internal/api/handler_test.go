package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/psaforge/copilot/internal/assistant"
	"github.com/psaforge/copilot/internal/auth"
	"github.com/psaforge/copilot/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	cfg, err := config.Load("copilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected trace id header")
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg, err := config.Load("copilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		Readiness: CombineReadinessChecks(
			CheckAssistantConfig(assistant.Credentials{APIKey: "sk-test"}),
		),
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "OPENAI_ASSISTANT_ID not configured" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestReadyEndpointReportsReady(t *testing.T) {
	cfg, err := config.Load("copilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		Readiness: CombineReadinessChecks(
			CheckAssistantConfig(assistant.Credentials{APIKey: "sk-test", AssistantID: "asst"}),
			CheckPing("database", func(context.Context) error { return nil }),
			CheckPing("unused", nil),
		),
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestCheckPingNamesDependency(t *testing.T) {
	err := CheckPing("database", func(context.Context) error { return errors.New("connection refused") })(context.Background())
	if err == nil || err.Error() != "database unavailable: connection refused" {
		t.Fatalf("err = %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg, err := config.Load("copilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg, err := config.Load("copilot-api", mapLookup(map[string]string{
		"COPILOT_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	validator, err := auth.NewStaticAPIKeyValidator("k1:t1:copilot_user")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	copilot := &fakeCopilot{}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Copilot:        copilot,
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, postQuery(`{"prompt":"Show all clients"}`))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}
	if unauthResp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS headers on unauthorized response")
	}

	authReq := postQuery(`{"prompt":"Show all clients"}`)
	authReq.Header.Set("apikey", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body = %s", authResp.Code, authResp.Body.String())
	}
	if len(copilot.requests) != 1 || copilot.requests[0].TenantID != "t1" {
		t.Fatalf("requests = %+v", copilot.requests)
	}
}

func TestProtectedRouteFailsClosedWithoutMiddleware(t *testing.T) {
	cfg, err := config.Load("copilot-api", mapLookup(map[string]string{
		"COPILOT_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	copilot := &fakeCopilot{}
	h := NewHandler(cfg, Dependencies{Copilot: copilot})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postQuery(`{"prompt":"Show all clients"}`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(copilot.requests) != 0 {
		t.Fatal("copilot should not be called")
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
