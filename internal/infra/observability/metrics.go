package observability

import (
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the CRM engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration      *prometheus.HistogramVec
	stageTransitions     *prometheus.CounterVec
	preconditionFailures *prometheus.CounterVec
	externalErrors       *prometheus.CounterVec
	cacheHits            *prometheus.CounterVec
	cacheMisses          *prometheus.CounterVec
	notificationsAcked   prometheus.Counter
	leadChanges          prometheus.Counter
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
				Name:    "crm_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		stageTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_stage_transitions_total",
				Help: "Stage transitions recorded, by target stage.",
			},
			[]string{"stage"},
		),
		preconditionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_precondition_failures_total",
				Help: "Transitions rejected for missing side-effect data, by target stage.",
			},
			[]string{"stage"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_external_errors_total",
				Help: "Total errors from storage and transport collaborators.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		notificationsAcked: factory.NewCounter(prometheus.CounterOpts{
			Name: "crm_notifications_acknowledged_total",
			Help: "Notifications flipped to read by opening the panel.",
		}),
		leadChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "crm_lead_changes_total",
			Help: "Lead-changed signals published.",
		}),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) IncrStageTransition(stage domain.Stage) {
	m.stageTransitions.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) IncrPreconditionFailure(stage domain.Stage) {
	m.preconditionFailures.WithLabelValues(string(stage)).Inc()
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

func (m *Metrics) AddNotificationsAcknowledged(n int) {
	m.notificationsAcked.Add(float64(n))
}

func (m *Metrics) IncrLeadChange() {
	m.leadChanges.Inc()
}

// externalTargets are the collaborator labels reported in the snapshot.
var externalTargets = []string{"leads", "meetings", "agents", "notification_reads", "realtime"}

// PipelineSnapshot returns the cumulative pipeline counters for the
// GET /v1/metrics/pipeline endpoint.
func (m *Metrics) PipelineSnapshot() *domain.PipelineMetrics {
	snap := &domain.PipelineMetrics{
		Transitions:            make(map[domain.Stage]int64),
		PreconditionFailures:   make(map[domain.Stage]int64),
		ExternalErrorsByTarget: make(map[string]int64),
		NotificationsAcked:     int64(counterValue(m.notificationsAcked)),
		LeadChangesPublished:   int64(counterValue(m.leadChanges)),
		Period:                 "all_time",
	}
	for _, st := range domain.Stages {
		if v := getCounterValue(m.stageTransitions, string(st)); v > 0 {
			snap.Transitions[st] = int64(v)
		}
		if v := getCounterValue(m.preconditionFailures, string(st)); v > 0 {
			snap.PreconditionFailures[st] = int64(v)
		}
	}
	for _, svc := range externalTargets {
		if v := getCounterValue(m.externalErrors, svc); v > 0 {
			snap.ExternalErrorsByTarget[svc] = int64(v)
		}
	}

	hits := getCounterValue(m.cacheHits, "agents")
	misses := getCounterValue(m.cacheMisses, "agents")
	if hits+misses > 0 {
		snap.RosterCacheHitRate = hits / (hits + misses)
	}
	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return counterValue(cv.WithLabelValues(label))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
