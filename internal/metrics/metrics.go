package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

const namespace = "reconcile"

var (
	// Registry holds every reconcile collector
	Registry = prometheus.NewRegistry()

	// Document outcomes by status and reason
	DocumentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_total",
		Help:      "Registrations processed by outcome",
	}, []string{"status", "reason"})

	// Staged field operations by kind (set, unset)
	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "staged_operations_total",
		Help:      "Field-level operations staged by the updater",
	}, []string{"op", "dry_run"})

	// Discrepancies by kind
	DiscrepanciesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "discrepancies_total",
		Help:      "Discrepancy records emitted",
	}, []string{"kind"})

	// Payment lookups by provider and result
	PaymentLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_lookups_total",
		Help:      "Payment provider lookups",
	}, []string{"provider", "result"})

	// Run duration
	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a reconcile run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"command"})

	// Unix time of the last completed run
	LastRunTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Completion time of the last run",
	}, []string{"command"})

	initOnce sync.Once
	initErr  error
)

// Init registers all collectors with Registry
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	for _, c := range []prometheus.Collector{
		DocumentsTotal,
		OperationsTotal,
		DiscrepanciesTotal,
		PaymentLookupsTotal,
		RunDuration,
		LastRunTimestamp,
	} {
		if err := Registry.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// Handler serves Registry for scraping
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordOutcome counts one document outcome
func RecordOutcome(o domain.DocumentOutcome) {
	DocumentsTotal.WithLabelValues(string(o.Status), o.Reason).Inc()
}

// RecordOperations counts staged set and unset operations
func RecordOperations(set, unset int, dryRun bool) {
	dr := fmt.Sprint(dryRun)
	OperationsTotal.WithLabelValues("set", dr).Add(float64(set))
	OperationsTotal.WithLabelValues("unset", dr).Add(float64(unset))
}

// RecordDiscrepancies counts discrepancies by kind
func RecordDiscrepancies(ds []domain.Discrepancy) {
	for _, d := range ds {
		DiscrepanciesTotal.WithLabelValues(string(d.Kind)).Inc()
	}
}

// RecordPaymentLookup counts a provider lookup
func RecordPaymentLookup(provider, result string) {
	PaymentLookupsTotal.WithLabelValues(provider, result).Inc()
}

// RecordRun observes a finished command
func RecordRun(command string, started time.Time) {
	RunDuration.WithLabelValues(command).Observe(time.Since(started).Seconds())
	LastRunTimestamp.WithLabelValues(command).SetToCurrentTime()
}

// Push sends Registry to a Prometheus pushgateway. Batch runs exit before
// any scrape, so the CLI pushes once at the end.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
