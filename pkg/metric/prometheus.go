package metric

import (
	"sync"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/prometheus/client_golang/prometheus"
)

type prometheusMetrics struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheus adapts a prometheus.Registerer to the Metrics interface.
// Keys and tag names are converted to snake_case; a key must always be used
// with the same tag names.
func NewPrometheus(registerer prometheus.Registerer) Metrics {
	return &prometheusMetrics{
		registerer: registerer,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (m *prometheusMetrics) Increment(key string, keyValueTags ...string) {
	names, values := splitTags(keyValueTags)

	m.mu.Lock()
	counter, ok := m.counters[key]
	if !ok {
		counter = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: strcase.ToSnake(key) + "_total"},
			names,
		)
		m.registerer.MustRegister(counter)
		m.counters[key] = counter
	}
	m.mu.Unlock()

	counter.WithLabelValues(values...).Inc()
}

func (m *prometheusMetrics) Duration(key string, duration time.Duration, keyValueTags ...string) {
	names, values := splitTags(keyValueTags)

	m.mu.Lock()
	histogram, ok := m.histograms[key]
	if !ok {
		histogram = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    strcase.ToSnake(key) + "_seconds",
				Buckets: prometheus.DefBuckets,
			},
			names,
		)
		m.registerer.MustRegister(histogram)
		m.histograms[key] = histogram
	}
	m.mu.Unlock()

	histogram.WithLabelValues(values...).Observe(duration.Seconds())
}

func splitTags(keyValueTags []string) (names, values []string) {
	pairs := len(keyValueTags) / 2
	names = make([]string, 0, pairs)
	values = make([]string, 0, pairs)
	for i := 0; i+1 < len(keyValueTags); i += 2 {
		names = append(names, strcase.ToSnake(keyValueTags[i]))
		values = append(values, keyValueTags[i+1])
	}

	return names, values
}
