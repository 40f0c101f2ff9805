// Package metrics collects registry build and activation telemetry with
// Prometheus collectors on a private registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the telemetry surface the engine and activator report to.
type Recorder interface {
	RecordBuild(duration time.Duration, err error)
	RecordScanError(kind string)
	RecordConflict(kind string)
	RecordSnapshot(contracts, bindings int)
	RecordActivation(contract string, duration time.Duration, err error)
	RecordActivationCycle()
	RecordReload(err error)
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = (*NoOpCollector)(nil)
)

// Collector implements Recorder with Prometheus collectors.
type Collector struct {
	registry *prometheus.Registry

	buildTotal      *prometheus.CounterVec
	buildLatency    prometheus.Histogram
	scanErrors      *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	contracts       prometheus.Gauge
	bindings        prometheus.Gauge
	activations     *prometheus.CounterVec
	activateLatency *prometheus.HistogramVec
	cycles          prometheus.Counter
	reloads         *prometheus.CounterVec
}

// NewCollector creates a collector. An empty namespace defaults to "propane".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "propane"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.buildTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "builds_total",
			Help:      "Total number of registry builds",
		},
		[]string{"result"},
	)
	c.buildLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "build_duration_seconds",
			Help:      "Time taken to scan and resolve a registry",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
	)
	c.scanErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "errors_total",
			Help:      "Scan errors by kind (unreadable, malformed)",
		},
		[]string{"kind"},
	)
	c.conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "conflicts_total",
			Help:      "Resolution conflicts by kind",
		},
		[]string{"kind"},
	)
	c.contracts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "contracts",
			Help:      "Contracts in the current registry",
		},
	)
	c.bindings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "bindings",
			Help:      "Bindings in the current registry",
		},
	)
	c.activations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activation",
			Name:      "total",
			Help:      "Binding instantiations by contract and result",
		},
		[]string{"contract", "result"},
	)
	c.activateLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "activation",
			Name:      "duration_seconds",
			Help:      "Time taken by implementation factories",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
		},
		[]string{"contract"},
	)
	c.cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activation",
			Name:      "cycles_total",
			Help:      "Dependency cycles detected during activation",
		},
	)
	c.reloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reloads_total",
			Help:      "Registry reloads by result",
		},
		[]string{"result"},
	)

	c.registry.MustRegister(
		c.buildTotal,
		c.buildLatency,
		c.scanErrors,
		c.conflicts,
		c.contracts,
		c.bindings,
		c.activations,
		c.activateLatency,
		c.cycles,
		c.reloads,
	)
	return c
}

// Registry returns the Prometheus registry for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordBuild records one scan-and-resolve.
func (c *Collector) RecordBuild(duration time.Duration, err error) {
	c.buildTotal.WithLabelValues(result(err)).Inc()
	c.buildLatency.Observe(duration.Seconds())
}

// RecordScanError counts one scan error.
func (c *Collector) RecordScanError(kind string) {
	c.scanErrors.WithLabelValues(kind).Inc()
}

// RecordConflict counts one resolution conflict.
func (c *Collector) RecordConflict(kind string) {
	c.conflicts.WithLabelValues(kind).Inc()
}

// RecordSnapshot sets the size of the current registry.
func (c *Collector) RecordSnapshot(contracts, bindings int) {
	c.contracts.Set(float64(contracts))
	c.bindings.Set(float64(bindings))
}

// RecordActivation records one factory call.
func (c *Collector) RecordActivation(contract string, duration time.Duration, err error) {
	c.activations.WithLabelValues(contract, result(err)).Inc()
	c.activateLatency.WithLabelValues(contract).Observe(duration.Seconds())
}

// RecordActivationCycle counts a detected cycle.
func (c *Collector) RecordActivationCycle() {
	c.cycles.Inc()
}

// RecordReload records one engine reload.
func (c *Collector) RecordReload(err error) {
	c.reloads.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

// NewNoOpCollector creates a collector that records nothing.
func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (*NoOpCollector) RecordBuild(time.Duration, error)              {}
func (*NoOpCollector) RecordScanError(string)                        {}
func (*NoOpCollector) RecordConflict(string)                         {}
func (*NoOpCollector) RecordSnapshot(int, int)                       {}
func (*NoOpCollector) RecordActivation(string, time.Duration, error) {}
func (*NoOpCollector) RecordActivationCycle()                        {}
func (*NoOpCollector) RecordReload(error)                            {}
