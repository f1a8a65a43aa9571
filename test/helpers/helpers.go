package helpers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// timingTables lists every table owned by the pipeline, in FK order.
var timingTables = []string{
	"split_times",
	"results",
	"timing_anomalies",
	"normalized_reads",
	"raw_reads",
	"event_watermarks",
}

// CreateTestContext creates a context with a timeout for testing.
func CreateTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx
}

// WaitForCondition waits for a condition to become true or times out.
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	require.Fail(t, "condition not met within timeout", message)
}

// MockLeaderboardWebhook runs an HTTP server that records every snapshot
// pushed to it.
type MockLeaderboardWebhook struct {
	Server *httptest.Server

	mu       sync.Mutex
	payloads []map[string]interface{}
}

// NewMockLeaderboardWebhook creates a webhook sink for publisher tests.
func NewMockLeaderboardWebhook(t *testing.T) *MockLeaderboardWebhook {
	t.Helper()

	m := &MockLeaderboardWebhook{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		m.payloads = append(m.payloads, payload)
		m.mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(m.Server.Close)

	return m
}

// Payloads returns a copy of every snapshot received so far.
func (m *MockLeaderboardWebhook) Payloads() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]interface{}, len(m.payloads))
	copy(out, m.payloads)
	return out
}

// Tables returns the pipeline-owned tables in truncation order.
func Tables() []string {
	return timingTables
}

// GetEnvOrDefault returns environment variable value or a default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SkipIfShort skips test if running in short mode.
func SkipIfShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
}
