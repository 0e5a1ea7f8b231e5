package health_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/health"
)

type countingChecker struct {
	pings atomic.Int32
}

func (c *countingChecker) PingDB(context.Context, time.Duration) error {
	c.pings.Add(1)
	return nil
}

func (c *countingChecker) PingRedis(context.Context, time.Duration) error {
	c.pings.Add(1)
	return nil
}

func TestReadinessWhileDraining(t *testing.T) {
	checker := &countingChecker{}
	handler := health.Handler{Checker: checker}
	t.Cleanup(func() { health.SetReady(true) })

	health.SetReady(true)
	resp := httptest.NewRecorder()
	handler.Ready(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.EqualValues(t, 2, checker.pings.Load())

	health.SetReady(false)
	resp = httptest.NewRecorder()
	handler.Ready(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "draining", body["status"])
	require.EqualValues(t, 2, checker.pings.Load(), "draining instances must not probe dependencies")
}
