package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// Metrics holds all Prometheus metrics of the staging pipeline.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	webhookDeliveries *prometheus.CounterVec
	stagingIngested   *prometheus.CounterVec
	stagingTransition *prometheus.CounterVec
	recurringChecks   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pfm_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pfm_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pfm_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pfm_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		webhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pfm_webhook_deliveries_total",
				Help: "Webhook deliveries by processor type and outcome.",
			},
			[]string{"type", "status"},
		),
		stagingIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pfm_staging_ingested_total",
				Help: "Ingested staging candidates by outcome (staged, skipped).",
			},
			[]string{"outcome", "source"},
		),
		stagingTransition: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pfm_staging_transitions_total",
				Help: "Staged transaction lifecycle actions.",
			},
			[]string{"action"},
		),
		recurringChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pfm_recurring_checks_total",
				Help: "Recurring expense checks by status.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrWebhookDelivery counts one delivery outcome.
func (m *Metrics) IncrWebhookDelivery(webhookType string, status domain.WebhookLogStatus) {
	if webhookType == "" {
		webhookType = "unknown"
	}
	m.webhookDeliveries.WithLabelValues(webhookType, string(status)).Inc()
}

// AddIngested counts staged and skipped candidates of one batch.
func (m *Metrics) AddIngested(source string, staged, skipped int) {
	m.stagingIngested.WithLabelValues("staged", source).Add(float64(staged))
	m.stagingIngested.WithLabelValues("skipped", source).Add(float64(skipped))
}

// IncrStagingAction counts approve, dismiss, restore and delete.
func (m *Metrics) IncrStagingAction(action string) {
	m.stagingTransition.WithLabelValues(action).Inc()
}

// IncrRecurringCheck counts one matcher outcome.
func (m *Metrics) IncrRecurringCheck(status domain.CheckStatus) {
	m.recurringChecks.WithLabelValues(string(status)).Inc()
}

// GetPipelineSnapshot returns cumulative pipeline counters for
// GET /v1/metrics/pipeline.
func (m *Metrics) GetPipelineSnapshot() *domain.PipelineMetrics {
	deliveries := map[string]float64{}
	for _, status := range []domain.WebhookLogStatus{
		domain.WebhookLogSuccess, domain.WebhookLogError, domain.WebhookLogInvalidSignature,
	} {
		deliveries[string(status)] = sumCounter(m.webhookDeliveries, map[string]string{"status": string(status)})
	}

	return &domain.PipelineMetrics{
		WebhookDeliveries: deliveries,
		StagedTotal:       sumCounter(m.stagingIngested, map[string]string{"outcome": "staged"}),
		SkippedTotal:      sumCounter(m.stagingIngested, map[string]string{"outcome": "skipped"}),
		Approved:          getCounterValue(m.stagingTransition, "approve"),
		Dismissed:         getCounterValue(m.stagingTransition, "dismiss"),
		Restored:          getCounterValue(m.stagingTransition, "restore"),
		Deleted:           getCounterValue(m.stagingTransition, "delete"),
		Period:            "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounter adds up every child of cv whose labels include match.
func sumCounter(cv *prometheus.CounterVec, match map[string]string) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		pb := &dto.Metric{}
		if err := metric.Write(pb); err != nil || pb.Counter == nil {
			continue
		}
		if labelsMatch(pb.GetLabel(), match) {
			total += pb.Counter.GetValue()
		}
	}
	return total
}

func labelsMatch(pairs []*dto.LabelPair, match map[string]string) bool {
	found := 0
	for _, lp := range pairs {
		if want, ok := match[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			found++
		}
	}
	return found == len(match)
}
