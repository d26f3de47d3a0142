package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/why-xn/infradesk/internal/alerts"
)

// Monitor is the set of infradesk metrics.
type Monitor struct {
	// Ledger operations by op (allocate, release, rebalance) and result.
	LedgerOps *prometheus.CounterVec
	// Current number of alerts per kind.
	Alerts *prometheus.GaugeVec
	// HTTP requests by method, route and status code.
	Requests *prometheus.CounterVec
	// HTTP request latency by method and route.
	RequestTimer *prometheus.HistogramVec
	// 1 when the last database ping succeeded.
	StoreUp prometheus.Gauge
}

func NewMonitor(registry *Registry) *Monitor {
	ledgerOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infradesk_ledger_operations_total",
		Help: "Capacity ledger operations",
	}, []string{"op", "result"})
	alertGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "infradesk_alerts",
		Help: "Current alerts by kind",
	}, []string{"kind"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infradesk_http_requests_total",
		Help: "HTTP requests handled",
	}, []string{"method", "route", "code"})
	requestTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "infradesk_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	storeUp := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "infradesk_store_up",
		Help: "Whether the last database ping succeeded",
	})
	registry.MustRegister(ledgerOps, alertGauge, requests, requestTimer, storeUp)
	return &Monitor{
		LedgerOps:    ledgerOps,
		Alerts:       alertGauge,
		Requests:     requests,
		RequestTimer: requestTimer,
		StoreUp:      storeUp,
	}
}

// ObserveLedgerOp implements capacity.Observer.
func (m *Monitor) ObserveLedgerOp(op, result string) {
	m.LedgerOps.WithLabelValues(op, result).Inc()
}

func (m *Monitor) SetAlertCounts(c alerts.Counts) {
	m.Alerts.WithLabelValues(string(alerts.KindVMPasswordOverdue)).Set(float64(c.VMPasswordOverdue))
	m.Alerts.WithLabelValues(string(alerts.KindVMPasswordDueSoon)).Set(float64(c.VMPasswordDueSoon))
	m.Alerts.WithLabelValues(string(alerts.KindGPPasswordOverdue)).Set(float64(c.GPPasswordOverdue))
	m.Alerts.WithLabelValues(string(alerts.KindGPPasswordDueSoon)).Set(float64(c.GPPasswordDueSoon))
	m.Alerts.WithLabelValues(string(alerts.KindContractExpired)).Set(float64(c.ContractsExpired))
	m.Alerts.WithLabelValues(string(alerts.KindContractExpiringSoon)).Set(float64(c.ContractsExpiringSoon))
}

func (m *Monitor) SetStoreUp(up bool) {
	if up {
		m.StoreUp.Set(1)
		return
	}
	m.StoreUp.Set(0)
}

// GinMiddleware counts requests by route template rather than raw path.
func (m *Monitor) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestTimer.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
