package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/tabload/internal/metrics"
	"github.com/JonMunkholm/tabload/internal/persist"
)

func newCollector() *metrics.Collector {
	reg := prometheus.NewRegistry()
	return metrics.NewWithRegistry(reg, reg)
}

// scrape returns the text exposition of m.
func scrape(t *testing.T, m *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func assertLines(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, line := range want {
		if !strings.Contains(body, line+"\n") {
			t.Errorf("metrics output missing %q", line)
		}
	}
}

func TestValidationCompleted(t *testing.T) {
	m := newCollector()

	m.ValidationCompleted("orders", true, 10, 0, 5*time.Millisecond)
	m.ValidationCompleted("orders", false, 4, 3, time.Millisecond)

	assertLines(t, scrape(t, m),
		`tabload_validations_total{entity="orders",outcome="valid"} 1`,
		`tabload_validations_total{entity="orders",outcome="invalid"} 1`,
		`tabload_rows_received_total{entity="orders"} 14`,
		`tabload_rows_rejected_total{entity="orders"} 3`,
		`tabload_validation_duration_seconds_count{entity="orders"} 2`,
	)
}

func TestSaveCompleted(t *testing.T) {
	m := newCollector()

	m.SaveCompleted("orders", persist.PathBulk, 5, time.Millisecond, errors.New("duplicate key"))
	m.FallbackTriggered("orders")
	m.SaveCompleted("orders", persist.PathUpsert, 5, time.Millisecond, nil)

	body := scrape(t, m)
	assertLines(t, body,
		`tabload_saves_total{outcome="error",path="bulk",table="orders"} 1`,
		`tabload_saves_total{outcome="success",path="upsert",table="orders"} 1`,
		`tabload_rows_saved_total{path="upsert",table="orders"} 5`,
		`tabload_upsert_fallbacks_total{table="orders"} 1`,
	)
	if strings.Contains(body, `tabload_rows_saved_total{path="bulk"`) {
		t.Error("failed bulk load counted saved rows")
	}
}

func TestHandler(t *testing.T) {
	m := newCollector()
	m.RegisterIngestGauges(func() int { return 2 }, func() int { return 5 })
	m.ObserveRequest(http.MethodPost, "/api/datasets/{entity}", http.StatusCreated, 10*time.Millisecond)

	assertLines(t, scrape(t, m),
		"tabload_ingests_in_flight 2",
		"tabload_ingests_max_concurrent 5",
		`tabload_http_requests_total{method="POST",route="/api/datasets/{entity}",status="201"} 1`,
	)
}
