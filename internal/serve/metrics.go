package serve

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/metapipe/internal/analysis"
)

// Metrics exposes run observability through Prometheus.
type Metrics struct {
	registry    *prom.Registry
	runs        *prom.CounterVec
	runDuration prom.Histogram
	lastRun     prom.Gauge
	comparisons prom.Gauge
	studies     prom.Gauge
	estimate    prom.Gauge
	i2          prom.Gauge
}

// NewMetrics constructs and registers the run metrics.
func NewMetrics(reg *prom.Registry) *Metrics {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	m := &Metrics{registry: reg}
	m.runs = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "metapipe",
		Name:      "runs_total",
		Help:      "Pipeline runs by outcome",
	}, []string{"result"})
	m.runDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "metapipe",
		Name:      "run_duration_seconds",
		Help:      "Duration of full pipeline runs",
		Buckets:   prom.DefBuckets,
	})
	m.lastRun = prom.NewGauge(prom.GaugeOpts{
		Namespace: "metapipe",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last run attempt",
	})
	m.comparisons = prom.NewGauge(prom.GaugeOpts{
		Namespace: "metapipe",
		Name:      "last_run_comparisons",
		Help:      "Comparisons pooled in the last successful run",
	})
	m.studies = prom.NewGauge(prom.GaugeOpts{
		Namespace: "metapipe",
		Name:      "last_run_studies",
		Help:      "Distinct studies pooled in the last successful run",
	})
	m.estimate = prom.NewGauge(prom.GaugeOpts{
		Namespace: "metapipe",
		Name:      "last_run_estimate",
		Help:      "Pooled effect estimate of the last successful run",
	})
	m.i2 = prom.NewGauge(prom.GaugeOpts{
		Namespace: "metapipe",
		Name:      "last_run_i2_percent",
		Help:      "Heterogeneity I2 of the last successful run",
	})
	reg.MustRegister(m.runs, m.runDuration, m.lastRun, m.comparisons, m.studies, m.estimate, m.i2)
	return m
}

// ObserveRun records one run attempt.
func (m *Metrics) ObserveRun(d time.Duration, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(d.Seconds())
	m.lastRun.Set(float64(time.Now().Unix()))
}

// SetResult publishes the headline numbers of a successful run.
func (m *Metrics) SetResult(res analysis.Result) {
	m.comparisons.Set(float64(res.K))
	m.studies.Set(float64(res.Studies))
	m.estimate.Set(res.Fit.Estimate)
	m.i2.Set(res.Fit.I2)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
