// ABOUTME: Prometheus metrics for the feed scheduler
// ABOUTME: Counts submissions, resumes and reconfigurations and tracks queue depth
package feed

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus collectors updated by sessions
type Metrics struct {
	BuffersSubmitted prometheus.Counter
	FramesSubmitted  prometheus.Counter
	ForcedResumes    prometheus.Counter
	Drops            prometheus.Counter
	Reconfigurations prometheus.Counter
	FeederSpawns     prometheus.Counter
	FeederErrors     prometheus.Counter

	SlotWait prometheus.Histogram

	QueuedBuffers prometheus.Gauge
	Intent        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registry
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register feed metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.BuffersSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ringfeed_buffers_submitted_total",
		Help: "Buffers filled and queued on the playback device.",
	})
	m.FramesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ringfeed_frames_submitted_total",
		Help: "PCM frames queued on the playback device.",
	})
	m.ForcedResumes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ringfeed_forced_resumes_total",
		Help: "Resume commands issued because the device was not playing while intent was playing.",
	})
	m.Drops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ringfeed_drops_total",
		Help: "Playback gaps caused by the device running out of queued audio.",
	})
	m.Reconfigurations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ringfeed_reconfigurations_total",
		Help: "Format negotiations performed by the feed loop.",
	})
	m.FeederSpawns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ringfeed_feeder_spawns_total",
		Help: "Background feeders started.",
	})
	m.FeederErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ringfeed_feeder_errors_total",
		Help: "Background feeders that stopped with an error.",
	})
	m.SlotWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ringfeed_slot_wait_seconds",
		Help:    "Time spent waiting for a free buffer slot.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 9), // 100µs to ~6.5s
	})
	m.QueuedBuffers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ringfeed_queued_buffers",
		Help: "Buffers queued on the device after the last submission.",
	})
	m.Intent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ringfeed_playback_intent",
		Help: "1 when the scheduler intends the device to be playing.",
	})
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.BuffersSubmitted.Describe(ch)
	m.FramesSubmitted.Describe(ch)
	m.ForcedResumes.Describe(ch)
	m.Drops.Describe(ch)
	m.Reconfigurations.Describe(ch)
	m.FeederSpawns.Describe(ch)
	m.FeederErrors.Describe(ch)
	m.SlotWait.Describe(ch)
	m.QueuedBuffers.Describe(ch)
	m.Intent.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.BuffersSubmitted.Collect(ch)
	m.FramesSubmitted.Collect(ch)
	m.ForcedResumes.Collect(ch)
	m.Drops.Collect(ch)
	m.Reconfigurations.Collect(ch)
	m.FeederSpawns.Collect(ch)
	m.FeederErrors.Collect(ch)
	m.SlotWait.Collect(ch)
	m.QueuedBuffers.Collect(ch)
	m.Intent.Collect(ch)
}

// The helpers below are safe on a nil *Metrics so sessions can run unobserved.

func (m *Metrics) submitted(frames, queued int) {
	if m == nil {
		return
	}
	m.BuffersSubmitted.Inc()
	m.FramesSubmitted.Add(float64(frames))
	m.QueuedBuffers.Set(float64(queued))
}

func (m *Metrics) resumed(drop bool) {
	if m == nil {
		return
	}
	m.ForcedResumes.Inc()
	if drop {
		m.Drops.Inc()
	}
}

func (m *Metrics) reconfigured() {
	if m == nil {
		return
	}
	m.Reconfigurations.Inc()
	m.QueuedBuffers.Set(0)
}

func (m *Metrics) spawned() {
	if m == nil {
		return
	}
	m.FeederSpawns.Inc()
}

func (m *Metrics) feederFailed() {
	if m == nil {
		return
	}
	m.FeederErrors.Inc()
}

func (m *Metrics) waited(d time.Duration) {
	if m == nil {
		return
	}
	m.SlotWait.Observe(d.Seconds())
}

func (m *Metrics) setIntent(playing bool) {
	if m == nil {
		return
	}
	if playing {
		m.Intent.Set(1)
	} else {
		m.Intent.Set(0)
	}
}
