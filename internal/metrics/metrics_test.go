// ABOUTME: Tests for the metrics registry
// ABOUTME: Verifies instruments register and the handler serves them
package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsServeOverHTTP(t *testing.T) {
	m := New()
	m.ChunkSent(1024)
	m.ChunkSent(2048)
	m.SchedulerMiss(3)
	m.TimeSyncHandled()
	m.SyncSample(true)
	m.SyncSample(false)
	m.SetConnectedClients(2)
	m.SetClockStats(12345, 678)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}

	body := rec.Body.String()
	expectations := map[string]string{
		"sendspin_chunks_sent_total":                "sendspin_chunks_sent_total 2",
		"sendspin_chunk_bytes_total":                "sendspin_chunk_bytes_total 3072",
		"sendspin_scheduler_miss_total":             "sendspin_scheduler_miss_total 3",
		"sendspin_time_sync_total":                  "sendspin_time_sync_total 1",
		"sendspin_sync_samples_accepted_total":      "sendspin_sync_samples_accepted_total 1",
		"sendspin_sync_samples_rejected_total":      "sendspin_sync_samples_rejected_total 1",
		"sendspin_connected_clients":                "sendspin_connected_clients 2",
		"sendspin_clock_offset_us":                  "sendspin_clock_offset_us 12345",
	}
	for name, line := range expectations {
		if !strings.Contains(body, line) {
			t.Errorf("missing %s: wanted line %q", name, line)
		}
	}
}

func TestMultipleRegistriesCoexist(t *testing.T) {
	// Each New gets its own registry; two instances must not panic on
	// duplicate registration.
	_ = New()
	_ = New()
}
