package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds all classdex metrics
type Collector struct {
	// Command metrics
	CommandsTotal *prometheus.CounterVec

	// Order metrics
	OrdersPlacedTotal    *prometheus.CounterVec
	OrdersRejectedTotal  *prometheus.CounterVec
	OrdersCancelledTotal *prometheus.CounterVec

	// Trade metrics
	TradesTotal *prometheus.CounterVec
	TradeVolume *prometheus.CounterVec

	// Matching engine metrics
	MatchingLatency *prometheus.HistogramVec

	// Session metrics
	GamesCreatedTotal prometheus.Counter
	ActiveGames       prometheus.Gauge

	// Fan-out metrics
	FanoutLatency   prometheus.Histogram
	WSMessagesTotal *prometheus.CounterVec

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSDroppedTotal      *prometheus.CounterVec

	// API metrics
	APIRequestsTotal *prometheus.CounterVec
}

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

// newCollector creates a new metrics collector
func newCollector() *Collector {
	c := &Collector{}

	c.CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "commands",
			Name:      "total",
			Help:      "Total inbound commands by type",
		},
		[]string{"type"},
	)

	c.OrdersPlacedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "orders",
			Name:      "placed_total",
			Help:      "Total limit orders accepted",
		},
		[]string{"symbol"},
	)

	c.OrdersRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Total order rejections by reason",
		},
		[]string{"reason"},
	)

	c.OrdersCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "orders",
			Name:      "cancelled_total",
			Help:      "Total resting orders removed by cancel commands",
		},
		[]string{"symbol"},
	)

	c.TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total trades executed",
		},
		[]string{"symbol"},
	)

	c.TradeVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "trades",
			Name:      "volume",
			Help:      "Total traded quantity",
		},
		[]string{"symbol"},
	)

	c.MatchingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "classdex",
			Subsystem: "matching",
			Name:      "latency_ms",
			Help:      "Matching run latency in milliseconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"symbol"},
	)

	c.GamesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total game sessions created",
		},
	)

	c.ActiveGames = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "classdex",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of live game sessions",
		},
	)

	c.FanoutLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "classdex",
			Subsystem: "fanout",
			Name:      "latency_ms",
			Help:      "Full-room fan-out latency in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100},
		},
	)

	c.WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Total outbound websocket messages by type",
		},
		[]string{"type"},
	)

	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "classdex",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active websocket connections",
		},
	)

	c.WSDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "websocket",
			Name:      "dropped_total",
			Help:      "Total inbound frames dropped by reason",
		},
		[]string{"reason"},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classdex",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	c.registerAll()

	return c
}

// registerAll registers all metrics with Prometheus
func (c *Collector) registerAll() {
	prometheus.MustRegister(c.CommandsTotal)
	prometheus.MustRegister(c.OrdersPlacedTotal)
	prometheus.MustRegister(c.OrdersRejectedTotal)
	prometheus.MustRegister(c.OrdersCancelledTotal)
	prometheus.MustRegister(c.TradesTotal)
	prometheus.MustRegister(c.TradeVolume)
	prometheus.MustRegister(c.MatchingLatency)
	prometheus.MustRegister(c.GamesCreatedTotal)
	prometheus.MustRegister(c.ActiveGames)
	prometheus.MustRegister(c.FanoutLatency)
	prometheus.MustRegister(c.WSMessagesTotal)
	prometheus.MustRegister(c.WSConnectionsActive)
	prometheus.MustRegister(c.WSDroppedTotal)
	prometheus.MustRegister(c.APIRequestsTotal)
}

// ============ Recording Helpers ============

// RecordCommand records one inbound command
func (c *Collector) RecordCommand(cmdType string) {
	c.CommandsTotal.WithLabelValues(cmdType).Inc()
}

// RecordOrderPlaced records an accepted limit order
func (c *Collector) RecordOrderPlaced(symbol string) {
	c.OrdersPlacedTotal.WithLabelValues(symbol).Inc()
}

// RecordOrderRejected records a rejected order by reason
func (c *Collector) RecordOrderRejected(reason string) {
	c.OrdersRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordCancel records removed resting orders
func (c *Collector) RecordCancel(symbol string, removed int) {
	if removed > 0 {
		c.OrdersCancelledTotal.WithLabelValues(symbol).Add(float64(removed))
	}
}

// RecordTrade records one trade and its volume
func (c *Collector) RecordTrade(symbol string, qty int64) {
	c.TradesTotal.WithLabelValues(symbol).Inc()
	c.TradeVolume.WithLabelValues(symbol).Add(float64(qty))
}

// RecordMatchingLatency records one matching run
func (c *Collector) RecordMatchingLatency(symbol string, latencyMs float64) {
	c.MatchingLatency.WithLabelValues(symbol).Observe(latencyMs)
}

// RecordGameCreated records a new session and the live count
func (c *Collector) RecordGameCreated(active int) {
	c.GamesCreatedTotal.Inc()
	c.ActiveGames.Set(float64(active))
}

// RecordFanout records one full-room fan-out pass
func (c *Collector) RecordFanout(latencyMs float64) {
	c.FanoutLatency.Observe(latencyMs)
}

// RecordWSMessage records one outbound message
func (c *Collector) RecordWSMessage(msgType string) {
	c.WSMessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordWSConnection records connection count changes
func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnectionsActive.Add(float64(delta))
}

// RecordWSDropped records a dropped inbound frame
func (c *Collector) RecordWSDropped(reason string) {
	c.WSDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordAPIRequest records an HTTP request
func (c *Collector) RecordAPIRequest(method, path, status string) {
	c.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ============ HTTP Handler ============

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for measuring latency
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
