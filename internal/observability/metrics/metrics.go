package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "github_monitor_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	streamDeliveries *prometheus.CounterVec
	streamDropped    *prometheus.CounterVec
	streamReconnects prometheus.Counter
	streamState      prometheus.Gauge

	storeMerges *prometheus.CounterVec
	storeSize   prometheus.Gauge

	windowLoads       *prometheus.CounterVec
	windowLoadLatency *prometheus.HistogramVec

	alertRefreshTotal   *prometheus.CounterVec
	alertRefreshLatency *prometheus.HistogramVec
	alertResolveTotal   *prometheus.CounterVec

	cuePlaybacks *prometheus.CounterVec

	viewRequests *prometheus.CounterVec
)

// Init registers engine metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		streamDeliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_deliveries_total",
				Help: "Push-channel messages delivered by named event",
			},
			[]string{"event"},
		)
		streamDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_dropped_total",
				Help: "Push-channel messages dropped by reason",
			},
			[]string{"reason"},
		)
		streamReconnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_reconnects_total",
				Help: "Push-channel reconnect attempts",
			},
		)
		streamState = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stream_connected",
				Help: "Push-channel state (1 connected, 0 disconnected)",
			},
		)

		storeMerges = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_merges_total",
				Help: "Working-set mutations by kind",
			},
			[]string{"kind"},
		)
		storeSize = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "store_size",
				Help: "Working-set size in records",
			},
		)

		windowLoads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "window_loads_total",
				Help: "Window bulk loads by result",
			},
			[]string{"result"},
		)
		windowLoadLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "window_load_latency_seconds",
				Help:    "Window bulk load latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		alertRefreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_refresh_total",
				Help: "Alert count refreshes by result",
			},
			[]string{"result"},
		)
		alertRefreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "alert_refresh_latency_seconds",
				Help:    "Alert refresh latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		alertResolveTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_resolve_total",
				Help: "Alert resolutions by result",
			},
			[]string{"result"},
		)

		cuePlaybacks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cue_playbacks_total",
				Help: "Notification cue playback attempts by result",
			},
			[]string{"result"},
		)

		viewRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "view_requests_total",
				Help: "View API reads by view",
			},
			[]string{"view"},
		)

		prometheus.MustRegister(
			streamDeliveries,
			streamDropped,
			streamReconnects,
			streamState,
			storeMerges,
			storeSize,
			windowLoads,
			windowLoadLatency,
			alertRefreshTotal,
			alertRefreshLatency,
			alertResolveTotal,
			cuePlaybacks,
			viewRequests,
		)
	})
}

// IncStreamDelivery counts one delivered push message.
func IncStreamDelivery(event string) {
	if event == "" {
		event = "message"
	}
	if streamDeliveries != nil {
		streamDeliveries.WithLabelValues(event).Inc()
	}
}

// IncStreamDropped counts one dropped push message.
func IncStreamDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if streamDropped != nil {
		streamDropped.WithLabelValues(reason).Inc()
	}
}

// IncStreamReconnect counts one reconnect attempt.
func IncStreamReconnect() {
	if streamReconnects != nil {
		streamReconnects.Inc()
	}
}

// SetStreamConnected records the push-channel state.
func SetStreamConnected(connected bool) {
	if streamState == nil {
		return
	}
	if connected {
		streamState.Set(1)
	} else {
		streamState.Set(0)
	}
}

// IncStoreMerge counts a working-set mutation and records the new size.
func IncStoreMerge(kind string, size int) {
	if kind == "" {
		kind = "unknown"
	}
	if storeMerges != nil {
		storeMerges.WithLabelValues(kind).Inc()
	}
	if storeSize != nil {
		storeSize.Set(float64(size))
	}
}

// ObserveWindowLoad records window bulk load latency and result.
func ObserveWindowLoad(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if windowLoads != nil {
		windowLoads.WithLabelValues(result).Inc()
	}
	if windowLoadLatency != nil {
		windowLoadLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveAlertRefresh records alert refresh latency and result.
func ObserveAlertRefresh(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if alertRefreshTotal != nil {
		alertRefreshTotal.WithLabelValues(result).Inc()
	}
	if alertRefreshLatency != nil {
		alertRefreshLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncAlertResolve counts an alert resolution by result.
func IncAlertResolve(result string) {
	if result == "" {
		result = resultSuccess
	}
	if alertResolveTotal != nil {
		alertResolveTotal.WithLabelValues(result).Inc()
	}
}

// IncCuePlayback counts a cue playback attempt by result.
func IncCuePlayback(result string) {
	if result == "" {
		result = resultSuccess
	}
	if cuePlaybacks != nil {
		cuePlaybacks.WithLabelValues(result).Inc()
	}
}

// IncViewRequest counts a view API read.
func IncViewRequest(view string) {
	if view == "" {
		view = "unknown"
	}
	if viewRequests != nil {
		viewRequests.WithLabelValues(view).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
