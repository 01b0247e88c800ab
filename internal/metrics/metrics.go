package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "smartwindow_"

var (
	registerOnce sync.Once

	tickTotal   *prometheus.CounterVec
	tickLatency *prometheus.HistogramVec

	priceFetchErrors *prometheus.CounterVec

	signalState  *prometheus.GaugeVec
	selectedSecs *prometheus.GaugeVec
)

// Init registers metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		tickTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tick_total",
				Help: "Total lifecycle ticks by sensor and outcome",
			},
			[]string{"sensor", "result"},
		)
		tickLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "tick_latency_seconds",
				Help:    "Lifecycle tick latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sensor"},
		)

		priceFetchErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "price_fetch_errors_total",
				Help: "Total price source failures by reason",
			},
			[]string{"sensor", "reason"},
		)

		signalState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "signal_on",
				Help: "1 while the sensor is inside a selected or failsafe window",
			},
			[]string{"sensor"},
		)
		selectedSecs = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "selected_seconds",
				Help: "Total duration of the active selection in seconds",
			},
			[]string{"sensor"},
		)

		prometheus.MustRegister(
			tickTotal,
			tickLatency,
			priceFetchErrors,
			signalState,
			selectedSecs,
		)
	})
}

// ObserveTick records tick duration and outcome.
func ObserveTick(sensor, result string, duration time.Duration) {
	if result == "" {
		result = "unknown"
	}
	if tickTotal != nil {
		tickTotal.WithLabelValues(sensor, result).Inc()
	}
	if tickLatency != nil {
		tickLatency.WithLabelValues(sensor).Observe(duration.Seconds())
	}
}

// IncPriceFetchError counts a failed price fetch.
func IncPriceFetchError(sensor, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if priceFetchErrors != nil {
		priceFetchErrors.WithLabelValues(sensor, reason).Inc()
	}
}

// SetSignal publishes the boolean signal and the active selection length.
func SetSignal(sensor string, on bool, selected time.Duration) {
	if signalState != nil {
		v := 0.0
		if on {
			v = 1
		}
		signalState.WithLabelValues(sensor).Set(v)
	}
	if selectedSecs != nil {
		selectedSecs.WithLabelValues(sensor).Set(selected.Seconds())
	}
}
