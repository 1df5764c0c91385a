// Package observability provides Prometheus metrics for the acquisition
// pipeline.
//
// Metrics live on a private registry so that several pipelines (tests in
// particular) can coexist in one process. Every method is safe on a nil
// *Metrics, which lets components run without instrumentation.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "enviroscan"

// Poll outcomes
const (
	PollSuccess = "success"
	PollNoData  = "no_data"
)

// Fetch failure reasons
const (
	FetchTransport = "transport"
	FetchStatus    = "status"
	FetchIdentity  = "identity"
	FetchDecode    = "decode"
)

// Resolution paths
const (
	ResolveDNS      = "dns"
	ResolveFallback = "fallback"
)

// Metrics holds all collectors of the pipeline
type Metrics struct {
	registry *prometheus.Registry

	// PollsTotal counts acquisition iterations by outcome.
	// Labels: result (success, no_data)
	PollsTotal *prometheus.CounterVec

	// FetchFailuresTotal counts failed fetches by reason.
	// Labels: reason (transport, status, identity, decode)
	FetchFailuresTotal *prometheus.CounterVec

	// ResolutionsTotal counts address resolutions by path.
	// Labels: path (dns, fallback)
	ResolutionsTotal *prometheus.CounterVec

	ModelFitsTotal       prometheus.Counter
	ModelFaultsTotal     prometheus.Counter
	IterationFaultsTotal prometheus.Counter

	ModelTrained        prometheus.Gauge
	TrainingSetSize     prometheus.Gauge
	HistoryLength       prometheus.Gauge
	LastRawPPM          prometheus.Gauge
	LastCalibratedPPM   prometheus.Gauge
	LastAirQualityIndex prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "acquisition",
			Name:      "polls_total",
			Help:      "Acquisition iterations by outcome",
		}, []string{"result"}),
		FetchFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sensor",
			Name:      "fetch_failures_total",
			Help:      "Sensor fetches that produced no data, by reason",
		}, []string{"reason"}),
		ResolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Device address resolutions by path",
		}, []string{"path"}),
		ModelFitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "fits_total",
			Help:      "Completed model fits",
		}),
		ModelFaultsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "prediction_faults_total",
			Help:      "Predictions that fell back to the raw value",
		}),
		IterationFaultsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "acquisition",
			Name:      "iteration_faults_total",
			Help:      "Unexpected faults recovered by the acquisition loop",
		}),
		ModelTrained: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "trained",
			Help:      "1 when the calibration model is fitted",
		}),
		TrainingSetSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "training_samples",
			Help:      "Retained training pairs",
		}),
		HistoryLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "history",
			Name:      "readings",
			Help:      "Readings held in the history buffer",
		}),
		LastRawPPM: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "reading",
			Name:      "raw_ppm",
			Help:      "Raw concentration of the latest reading",
		}),
		LastCalibratedPPM: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "reading",
			Name:      "calibrated_ppm",
			Help:      "Calibrated concentration of the latest reading",
		}),
		LastAirQualityIndex: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "reading",
			Name:      "aqi",
			Help:      "Air-quality index of the latest reading",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPoll counts one acquisition iteration
func (m *Metrics) RecordPoll(result string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(result).Inc()
}

// RecordFetchFailure counts one failed fetch
func (m *Metrics) RecordFetchFailure(reason string) {
	if m == nil {
		return
	}
	m.FetchFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordResolution counts one address resolution
func (m *Metrics) RecordResolution(path string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(path).Inc()
}

// RecordFit updates model gauges after a completed fit
func (m *Metrics) RecordFit(samples int) {
	if m == nil {
		return
	}
	m.ModelFitsTotal.Inc()
	m.ModelTrained.Set(1)
	m.TrainingSetSize.Set(float64(samples))
}

// SetModelState reports the model state without counting a fit
func (m *Metrics) SetModelState(trained bool, samples int) {
	if m == nil {
		return
	}
	if trained {
		m.ModelTrained.Set(1)
	} else {
		m.ModelTrained.Set(0)
	}
	m.TrainingSetSize.Set(float64(samples))
}

func (m *Metrics) RecordModelFault() {
	if m == nil {
		return
	}
	m.ModelFaultsTotal.Inc()
}

func (m *Metrics) RecordIterationFault() {
	if m == nil {
		return
	}
	m.IterationFaultsTotal.Inc()
}

func (m *Metrics) SetHistoryLength(n int) {
	if m == nil {
		return
	}
	m.HistoryLength.Set(float64(n))
}

// RecordReading publishes the latest reading values
func (m *Metrics) RecordReading(rawPPM, calibratedPPM, aqi float64) {
	if m == nil {
		return
	}
	m.LastRawPPM.Set(rawPPM)
	m.LastCalibratedPPM.Set(calibratedPPM)
	m.LastAirQualityIndex.Set(aqi)
}
