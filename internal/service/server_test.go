package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/knrv/webpilot/api/schemas"
	"github.com/knrv/webpilot/internal/config"
)

type stubExecutor struct {
	result   schemas.RunResult
	commands []string
}

func (e *stubExecutor) Execute(_ context.Context, instruction string) schemas.RunResult {
	e.commands = append(e.commands, instruction)
	return e.result
}

func newTestServer(t *testing.T, executor Executor) *Server {
	t.Helper()
	return NewServer(executor, config.ServiceConfig{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	}, zaptest.NewLogger(t))
}

func TestInteract_RunsCommand(t *testing.T) {
	executor := &stubExecutor{result: schemas.RunResult{
		RunID:   "run-1",
		Status:  schemas.StatusSuccess,
		Message: "instruction completed",
	}}
	server := newTestServer(t, executor)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/interact",
		strings.NewReader(`{"command":"open example.com"}`))
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"open example.com"}, executor.commands)

	var result schemas.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, schemas.StatusSuccess, result.Status)
}

func TestInteract_RejectsMissingCommand(t *testing.T) {
	executor := &stubExecutor{}
	server := newTestServer(t, executor)

	for _, body := range []string{`{}`, `{"command":"   "}`, `not json`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/interact", strings.NewReader(body))
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
	assert.Empty(t, executor.commands)
}

func TestInteract_ErrorStatusMapsToBadGateway(t *testing.T) {
	executor := &stubExecutor{result: schemas.RunResult{
		Status:  schemas.StatusError,
		Message: "launching browser: no such binary",
	}}
	server := newTestServer(t, executor)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/interact",
		strings.NewReader(`{"command":"anything"}`))
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInteract_PartialAndBudgetStatusesAreOK(t *testing.T) {
	for _, status := range []schemas.RunStatus{schemas.StatusPartial, schemas.StatusStepBudgetExceeded} {
		executor := &stubExecutor{result: schemas.RunResult{Status: status}}
		server := newTestServer(t, executor)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/interact",
			strings.NewReader(`{"command":"anything"}`))
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "status: %s", status)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, &stubExecutor{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListenAndServe_StopsOnContextCancel(t *testing.T) {
	server := newTestServer(t, &stubExecutor{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- server.ListenAndServe(ctx) }()

	// Give the listener a moment to come up, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
