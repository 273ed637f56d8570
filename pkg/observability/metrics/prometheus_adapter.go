package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics by registering and updating
// prometheus vector collectors keyed by metric name, dynamically labeled
// by the tag keys first seen for that name. The collector maps are shared
// across WithTags children and guarded by mu, since requests record
// metrics concurrently.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	tags     map[string]string

	mu           *sync.Mutex
	counters     map[string]*prometheus.CounterVec
	distribution map[string]*prometheus.HistogramVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics returns a PrometheusMetrics registering its
// collectors against registry.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	return &PrometheusMetrics{
		registry:     registry,
		mu:           &sync.Mutex{},
		counters:     map[string]*prometheus.CounterVec{},
		distribution: map[string]*prometheus.HistogramVec{},
	}
}

func (p *PrometheusMetrics) mergedTags(tags map[string]string) map[string]string {
	if len(p.tags) == 0 {
		return tags
	}
	merged := make(map[string]string, len(p.tags)+len(tags))
	for k, v := range p.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	return merged
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (p *PrometheusMetrics) counterVec(key string, tags map[string]string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[key]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: sanitizeMetricName(key),
		Help: key,
	}, labelNames(tags))
	p.registry.MustRegister(c)
	p.counters[key] = c
	return c
}

func (p *PrometheusMetrics) histogramVec(key string, tags map[string]string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.distribution[key]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: sanitizeMetricName(key),
		Help: key,
	}, labelNames(tags))
	p.registry.MustRegister(h)
	p.distribution[key] = h
	return h
}

func (p *PrometheusMetrics) Increment(key string, tags map[string]string) {
	p.Counter(key, tags, 1)
}

func (p *PrometheusMetrics) Counter(key string, tags map[string]string, value int64) {
	merged := p.mergedTags(tags)
	p.counterVec(key, merged).With(prometheus.Labels(merged)).Add(float64(value))
}

func (p *PrometheusMetrics) Distribution(key string, tags map[string]string, value float64) {
	merged := p.mergedTags(tags)
	p.histogramVec(key, merged).With(prometheus.Labels(merged)).Observe(value)
}

func (p *PrometheusMetrics) DistributionMs(key string, tags map[string]string, value time.Duration) {
	p.Distribution(key, tags, float64(value.Milliseconds()))
}

func (p *PrometheusMetrics) WithTags(tags map[string]string) Metrics {
	return &PrometheusMetrics{
		registry:     p.registry,
		tags:         p.mergedTags(tags),
		mu:           p.mu,
		counters:     p.counters,
		distribution: p.distribution,
	}
}

func sanitizeMetricName(key string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(key)
}
