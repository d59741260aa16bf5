// Package metrics exposes engine and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Pawieee/microbank/internal/domain"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "microbank"

// Metrics owns its registry so tests and multiple binaries never collide on
// the global one.
type Metrics struct {
	registry *prometheus.Registry

	applicationsScored *prometheus.CounterVec
	statusChanges      *prometheus.CounterVec
	paymentsApplied    *prometheus.CounterVec
	amountCollected    prometheus.Counter
	contention         *prometheus.CounterVec
	remindersSent      prometheus.Counter
	overdueLoans       prometheus.Gauge
	httpDuration       *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		applicationsScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applications_scored_total",
			Help:      "Eligibility evaluations by outcome.",
		}, []string{"status"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_status_changes_total",
			Help:      "Loans entering each lifecycle status.",
		}, []string{"status"}),
		paymentsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_applied_total",
			Help:      "Payments recorded, by remarks.",
		}, []string{"remarks"}),
		amountCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_amount_collected_total",
			Help:      "Sum of accepted payment amounts.",
		}),
		contention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_lock_contention_total",
			Help:      "Operations refused because the loan row was locked.",
		}, []string{"op"}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reminders_sent_total",
			Help:      "Due-date reminders delivered.",
		}),
		overdueLoans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overdue_loans",
			Help:      "Open loans past their due date at the last sweep.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.applicationsScored,
		m.statusChanges,
		m.paymentsApplied,
		m.amountCollected,
		m.contention,
		m.remindersSent,
		m.overdueLoans,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ApplicationScored(status string) {
	m.applicationsScored.WithLabelValues(status).Inc()
}

func (m *Metrics) LoanStatusChanged(to domain.LoanStatus) {
	m.statusChanges.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) PaymentApplied(remarks string, amount decimal.Decimal) {
	m.paymentsApplied.WithLabelValues(remarks).Inc()
	m.amountCollected.Add(amount.InexactFloat64())
}

func (m *Metrics) Contention(op string) {
	m.contention.WithLabelValues(op).Inc()
}

func (m *Metrics) RemindersSent(n int) {
	m.remindersSent.Add(float64(n))
}

func (m *Metrics) OverdueLoans(n int) {
	m.overdueLoans.Set(float64(n))
}

// Middleware times requests, labelled with the mux route template so loan
// ids do not explode the label set.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
