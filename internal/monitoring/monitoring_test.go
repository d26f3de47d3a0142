package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/why-xn/infradesk/internal/alerts"
)

func TestRegistry_Gather(t *testing.T) {
	registry := NewRegistry(Config{Labels: map[string]string{"env": "test"}})
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})
	registry.MustRegister(counter)
	counter.Inc()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected metric families")
	}
	for _, family := range families {
		for _, metric := range family.Metric {
			found := false
			for _, label := range metric.Label {
				if label.GetName() == "env" && label.GetValue() == "test" {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("metric %s is missing the env label", family.GetName())
			}
		}
	}
}

func TestMonitor_LedgerOps(t *testing.T) {
	registry := &Registry{Registry: prometheus.NewRegistry()}
	m := NewMonitor(registry)

	m.ObserveLedgerOp("allocate", "ok")
	m.ObserveLedgerOp("allocate", "ok")
	m.ObserveLedgerOp("release", "error")

	expected := `
        # HELP infradesk_ledger_operations_total Capacity ledger operations
        # TYPE infradesk_ledger_operations_total counter
        infradesk_ledger_operations_total{op="allocate",result="ok"} 2
        infradesk_ledger_operations_total{op="release",result="error"} 1
    `
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "infradesk_ledger_operations_total"); err != nil {
		t.Fatalf("ledger ops: %v", err)
	}
}

func TestMonitor_AlertsAndStore(t *testing.T) {
	registry := &Registry{Registry: prometheus.NewRegistry()}
	m := NewMonitor(registry)

	m.SetAlertCounts(alerts.Counts{VMPasswordOverdue: 3, ContractsExpiringSoon: 1})
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("vm_password_overdue")); got != 3 {
		t.Errorf("vm_password_overdue = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("contract_expiring_soon")); got != 1 {
		t.Errorf("contract_expiring_soon = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("gp_password_due_soon")); got != 0 {
		t.Errorf("gp_password_due_soon = %v, want 0", got)
	}

	m.SetStoreUp(true)
	if got := testutil.ToFloat64(m.StoreUp); got != 1 {
		t.Errorf("store up = %v, want 1", got)
	}
	m.SetStoreUp(false)
	if got := testutil.ToFloat64(m.StoreUp); got != 0 {
		t.Errorf("store up = %v, want 0", got)
	}
}

func TestMonitor_GinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := &Registry{Registry: prometheus.NewRegistry()}
	m := NewMonitor(registry)

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/vms/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/vms/1", "/vms/2", "/nope"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/vms/:id", "204")); got != 2 {
		t.Errorf("route count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched count = %v, want 1", got)
	}
}

func TestRegistry_Handler(t *testing.T) {
	registry := NewRegistry(Config{})
	NewMonitor(registry).ObserveLedgerOp("allocate", "ok")

	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `infradesk_ledger_operations_total{op="allocate",result="ok"} 1`) {
		t.Errorf("metrics output missing ledger counter:\n%s", w.Body.String())
	}
}
