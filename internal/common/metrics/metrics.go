package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const MetricPrefix = "vericampaign_"

// CampaignMetrics holds the Prometheus collectors updated while a campaign runs. Each instance owns its registry so
// that several campaigns (or tests) can live in one process.
type CampaignMetrics struct {
	registry         *prometheus.Registry
	jobsCompleted    *prometheus.CounterVec
	engineDuration   *prometheus.HistogramVec
	variantsTotal    prometheus.Gauge
	unsatisfiedTotal *prometheus.CounterVec
}

func NewCampaignMetrics() *CampaignMetrics {
	m := &CampaignMetrics{
		registry: prometheus.NewRegistry(),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "jobs_completed_total",
			Help: "Number of verification jobs completed, by property kind",
		}, []string{"kind"}),
		engineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricPrefix + "engine_duration_seconds",
			Help:    "Wall-clock time of a single engine invocation, by property kind",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"kind"}),
		variantsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "variants_total",
			Help: "Number of model variants in the campaign",
		}),
		unsatisfiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "unsatisfied_total",
			Help: "Number of jobs whose formula was not satisfied, by property kind",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.jobsCompleted, m.engineDuration, m.variantsTotal, m.unsatisfiedTotal)
	return m
}

func (m *CampaignMetrics) SetVariants(n int) {
	m.variantsTotal.Set(float64(n))
}

func (m *CampaignMetrics) RecordJob(kind string, seconds float64, satisfied bool) {
	m.jobsCompleted.WithLabelValues(kind).Inc()
	m.engineDuration.WithLabelValues(kind).Observe(seconds)
	if !satisfied {
		m.unsatisfiedTotal.WithLabelValues(kind).Inc()
	}
}

// WriteToFile writes the campaign metrics, plus anything registered on the default registry (e.g. log counters),
// in the Prometheus text exposition format.
func (m *CampaignMetrics) WriteToFile(path string) error {
	gatherers := prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}
	if err := prometheus.WriteToTextfile(path, gatherers); err != nil {
		return errors.WithMessagef(err, "failed to write metrics to %s", path)
	}
	return nil
}
