package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel/metric"
)

var (
	counters   sync.Map // name -> metric.Int64Counter
	histograms sync.Map // name -> metric.Float64Histogram
)

// Counter returns the named counter, creating it on first use. Instruments
// that fail to register fall back to the provider's no-op instrument.
func Counter(name string, opts ...metric.Int64CounterOption) metric.Int64Counter {
	if c, ok := counters.Load(name); ok {
		return c.(metric.Int64Counter)
	}
	c, _ := Meter().Int64Counter(name, opts...)
	actual, _ := counters.LoadOrStore(name, c)
	return actual.(metric.Int64Counter)
}

// Histogram returns the named histogram, creating it on first use.
func Histogram(name string, opts ...metric.Float64HistogramOption) metric.Float64Histogram {
	if h, ok := histograms.Load(name); ok {
		return h.(metric.Float64Histogram)
	}
	h, _ := Meter().Float64Histogram(name, opts...)
	actual, _ := histograms.LoadOrStore(name, h)
	return actual.(metric.Float64Histogram)
}
