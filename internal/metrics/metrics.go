// Package metrics provides Prometheus metrics for the capture core.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons used as the "reason" label of BlocksDropped.
const (
	DropContention = "contention"
	DropTeardown   = "teardown"
	DropOverflow   = "overflow"
)

// Metrics contains the counters and gauges updated by the capture engine and
// the recording session. All methods are safe to call on a nil *Metrics.
type Metrics struct {
	BlocksAppended  prometheus.Counter
	SamplesAppended prometheus.Counter
	BlocksDropped   *prometheus.CounterVec

	StreamsStarted prometheus.Counter
	StreamFailures prometheus.Counter

	Armed           prometheus.Gauge
	BufferedSamples prometheus.Gauge
}

// New creates the metrics and registers them with the given registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if err := reg.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.BlocksAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podrec_blocks_appended_total",
		Help: "Sample blocks appended to the recording buffer.",
	})
	m.SamplesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podrec_samples_appended_total",
		Help: "Interleaved samples appended to the recording buffer.",
	})
	m.BlocksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podrec_blocks_dropped_total",
			Help: "Sample blocks dropped by the capture path, partitioned by reason.",
		},
		[]string{"reason"},
	)
	m.StreamsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podrec_streams_started_total",
		Help: "Input streams that reached the playing state.",
	})
	m.StreamFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podrec_stream_failures_total",
		Help: "Input streams that failed after starting.",
	})
	m.Armed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "podrec_session_armed",
		Help: "1 while the recording session is armed.",
	})
	m.BufferedSamples = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "podrec_buffered_samples",
		Help: "Samples currently held in the recording buffer.",
	})
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.BlocksAppended.Describe(ch)
	m.SamplesAppended.Describe(ch)
	m.BlocksDropped.Describe(ch)
	m.StreamsStarted.Describe(ch)
	m.StreamFailures.Describe(ch)
	m.Armed.Describe(ch)
	m.BufferedSamples.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.BlocksAppended.Collect(ch)
	m.SamplesAppended.Collect(ch)
	m.BlocksDropped.Collect(ch)
	m.StreamsStarted.Collect(ch)
	m.StreamFailures.Collect(ch)
	m.Armed.Collect(ch)
	m.BufferedSamples.Collect(ch)
}

// BlockAppended records one appended block of n samples and the new buffer size.
func (m *Metrics) BlockAppended(n, buffered int) {
	if m == nil {
		return
	}
	m.BlocksAppended.Inc()
	m.SamplesAppended.Add(float64(n))
	m.BufferedSamples.Set(float64(buffered))
}

// BlockDropped records a block that never reached the buffer.
func (m *Metrics) BlockDropped(reason string) {
	if m == nil {
		return
	}
	m.BlocksDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.StreamsStarted.Inc()
}

func (m *Metrics) StreamFailed() {
	if m == nil {
		return
	}
	m.StreamFailures.Inc()
}

func (m *Metrics) SetArmed(armed bool) {
	if m == nil {
		return
	}
	if armed {
		m.Armed.Set(1)
	} else {
		m.Armed.Set(0)
	}
}

func (m *Metrics) SetBuffered(n int) {
	if m == nil {
		return
	}
	m.BufferedSamples.Set(float64(n))
}
