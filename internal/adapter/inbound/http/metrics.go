// Package http provides the HTTP transport adapter for the gateway.
package http

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the process-wide counters. All are monotonically
// increasing and reset only on process restart.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    prometheus.Counter
	ErrorsTotal      prometheus.Counter
	RateLimitBlocks  prometheus.Counter
	CircuitOpens     *prometheus.CounterVec
	ProviderFailures *prometheus.CounterVec
	LLMLatency       prometheus.Histogram
}

// NewMetrics creates and registers all metrics with a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		RequestsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "requests_total",
			Help:      "Total number of requests processed",
		}),
		ErrorsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "errors_total",
			Help:      "Total number of requests answered with an error status",
		}),
		RateLimitBlocks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "rate_limit_blocks_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}),
		CircuitOpens: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "circuit_opens_total",
			Help:      "Circuit breaker open transitions per provider",
		}, []string{"provider"}),
		ProviderFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "provider_failures_total",
			Help:      "Failed provider attempts per provider",
		}, []string{"provider"}),
		LLMLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "wardengate",
			Name:      "llm_latency_seconds",
			Help:      "Latency of successful provider calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry exposes the underlying registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RenderFlat renders every metric as one "name{labels} value" line,
// sorted, for the plain-text snapshot endpoint. Histograms contribute
// their _sum and _count series only.
func (m *Metrics) RenderFlat() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := renderLabels(metric.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				lines = append(lines, fmt.Sprintf("%s%s %g", mf.GetName(), labels, metric.GetCounter().GetValue()))
			case dto.MetricType_GAUGE:
				lines = append(lines, fmt.Sprintf("%s%s %g", mf.GetName(), labels, metric.GetGauge().GetValue()))
			case dto.MetricType_HISTOGRAM:
				h := metric.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s_sum%s %g", mf.GetName(), labels, h.GetSampleSum()))
				lines = append(lines, fmt.Sprintf("%s_count%s %d", mf.GetName(), labels, h.GetSampleCount()))
			}
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n", nil
}

func renderLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
