// v0
// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nrgchamp/greenhouse/internal/breaker"
	"nrgchamp/greenhouse/internal/model"
)

const namespace = "greenhouse"

// Metrics owns its registry so that every process (and every test) gets an
// isolated set of collectors. All methods are safe on a nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	published       *prometheus.CounterVec
	baseline        *prometheus.GaugeVec
	steps           *prometheus.GaugeVec
	alerts          *prometheus.CounterVec
	interventions   *prometheus.CounterVec
	qualityWarnings prometheus.Counter
	overrides       *prometheus.CounterVec
	cbState         *prometheus.GaugeVec

	ingested    *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Cycles run, by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one generate/detect/compensate/publish cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Readings handled by the publish step, by result.",
		}, []string{"result"}),
		baseline: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "baseline",
			Help:      "Current baseline per metric.",
		}, []string{"metric"}),
		steps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manual_step",
			Help:      "Pending manual step per metric.",
		}, []string{"metric"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by the detector, by level and metric.",
		}, []string{"level", "metric"}),
		interventions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interventions_total",
			Help:      "Cycles where the correction needed exceeded the per-cycle cap.",
		}, []string{"metric"}),
		qualityWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_quality_warnings_total",
			Help:      "Readings excluded from averaging because of missing values.",
		}),
		overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "override_commands_total",
			Help:      "Operator commands applied, by command.",
		}, []string{"command"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_messages_total",
			Help:      "Messages received by the recorder, by result.",
		}, []string{"result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits observed.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses observed.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.cycles,
		m.cycleDuration,
		m.published,
		m.baseline,
		m.steps,
		m.alerts,
		m.interventions,
		m.qualityWarnings,
		m.overrides,
		m.cbState,
		m.ingested,
		m.cacheHits,
		m.cacheMisses,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(duration)
		}
	})
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) CycleCompleted(d time.Duration, published, failed, skipped int) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues("completed").Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.published.WithLabelValues("published").Add(float64(published))
	m.published.WithLabelValues("failed").Add(float64(failed))
	m.published.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) CycleFailed(reason string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveBaseline(b model.Baseline) {
	if m == nil {
		return
	}
	for _, metric := range model.Metrics {
		m.baseline.WithLabelValues(string(metric)).Set(b.Get(metric))
	}
}

func (m *Metrics) ObserveSteps(s model.Steps) {
	if m == nil {
		return
	}
	for _, metric := range model.Metrics {
		m.steps.WithLabelValues(string(metric)).Set(s.Get(metric))
	}
}

func (m *Metrics) AlertRaised(level string, metric model.Metric) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(level, string(metric)).Inc()
}

func (m *Metrics) InterventionRaised(metric model.Metric) {
	if m == nil {
		return
	}
	m.interventions.WithLabelValues(string(metric)).Inc()
}

func (m *Metrics) DataQualityWarnings(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.qualityWarnings.Add(float64(n))
}

func (m *Metrics) OverrideApplied(command string) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(command).Inc()
}

func (m *Metrics) SetCircuitBreakerState(target string, s breaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch s {
	case breaker.HalfOpen:
		v = 1
	case breaker.Open:
		v = 2
	}
	m.cbState.WithLabelValues(target).Set(v)
}

func (m *Metrics) MessageIngested(result string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
