package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GoCodeAlone/gsecret/observability"
)

func TestHealthHandlerHealthyWithNoChecks(t *testing.T) {
	h := observability.NewHealthChecker(0)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.HealthHandler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandlerUnhealthyWhenCheckFails(t *testing.T) {
	h := observability.NewHealthChecker(0)
	h.RegisterCheck("upstream", func(context.Context) observability.CheckResult {
		return observability.CheckResult{Status: "unhealthy", Message: "boom"}
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.HealthHandler()(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyHandlerNotReadyBeforeMarkReady(t *testing.T) {
	h := observability.NewHealthChecker(0)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ReadyHandler()(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyHandlerReadyAfterMarkReady(t *testing.T) {
	h := observability.NewHealthChecker(0)
	h.MarkReady()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ReadyHandler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLiveHandlerAlwaysOK(t *testing.T) {
	h := observability.NewHealthChecker(0)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	rec := httptest.NewRecorder()
	h.LiveHandler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
