package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ok(context.Context) error { return nil }

func fail(context.Context) error { return errors.New("unreachable") }

func serve(t *testing.T, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestHealthHandler_Healthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewCriticalChecker("storage", ok))

	w := serve(t, handler.ServeHTTP)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Fatalf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Fatalf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_StorageDown(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewCriticalChecker("storage", fail))

	w := serve(t, handler.ServeHTTP)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Checks["storage"].Message != "unreachable" {
		t.Fatalf("unexpected message %q", response.Checks["storage"].Message)
	}
}

func TestHealthHandler_BackendDownIsDegraded(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewCriticalChecker("storage", ok))
	handler.RegisterChecker("backend", NewOptionalChecker("backend", fail))

	resp := handler.Evaluate(context.Background())
	if resp.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", resp.Status)
	}

	if w := serve(t, handler.ServeHTTP); w.Code != http.StatusOK {
		t.Fatalf("degraded must still answer 200, got %d", w.Code)
	}
	if w := serve(t, handler.ReadinessHandler); w.Code != http.StatusOK {
		t.Fatalf("degraded terminal must stay ready, got %d", w.Code)
	}
}

func TestHealthHandler_UnhealthyWinsOverDegraded(t *testing.T) {
	handler := NewHandler("")
	handler.RegisterChecker("backend", NewOptionalChecker("backend", fail))
	handler.RegisterChecker("storage", NewCriticalChecker("storage", fail))

	if got := handler.Evaluate(context.Background()).Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got)
	}
	if w := serve(t, handler.ReadinessHandler); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestChecker_ReceivesDeadline(t *testing.T) {
	handler := NewHandler("")
	var hasDeadline bool
	handler.RegisterChecker("deadline", NewCriticalChecker("deadline", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}))

	handler.Evaluate(context.Background())
	if !hasDeadline {
		t.Fatal("check context must carry a deadline")
	}
}

func TestLivenessHandler(t *testing.T) {
	w := serve(t, LivenessHandler)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected liveness response %d %q", w.Code, w.Body.String())
	}
}
