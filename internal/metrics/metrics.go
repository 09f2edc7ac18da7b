package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector holds all Prometheus metrics for botpanel.
type Collector struct {
	// Registry is served on /metrics.
	Registry *prometheus.Registry

	pollRequests   *prometheus.CounterVec
	pollDuration   *prometheus.HistogramVec
	endpointHealth *prometheus.GaugeVec
	botActive      prometheus.Gauge
	connectedUsers prometheus.Gauge
	qrPresent      prometheus.Gauge
	toggles        *prometheus.CounterVec
	notifications  *prometheus.CounterVec
}

// New creates all metrics and registers them on a fresh registry together
// with the Go runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := newCollector(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func newCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		Registry: reg,
		pollRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botpanel_backend_requests_total",
				Help: "Requests issued to the bot backend by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		pollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botpanel_backend_request_duration_seconds",
				Help:    "Latency of bot backend requests in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"endpoint"},
		),
		endpointHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "botpanel_endpoint_health",
				Help: "Health of each polled backend endpoint (1=healthy, 0=unhealthy)",
			},
			[]string{"endpoint"},
		),
		botActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "botpanel_bot_active",
			Help: "Whether the bot last reported status activo (1) or not (0)",
		}),
		connectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "botpanel_connected_users",
			Help: "Last polled number of users the bot is serving",
		}),
		qrPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "botpanel_qr_present",
			Help: "Whether a pairing QR code is currently available (1) or not (0)",
		}),
		toggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botpanel_session_toggles_total",
				Help: "Session toggles by action (logout, reconnect) and outcome",
			},
			[]string{"action", "outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botpanel_notifications_total",
				Help: "Dashboard notifications raised by level",
			},
			[]string{"level"},
		),
	}

	reg.MustRegister(
		c.pollRequests,
		c.pollDuration,
		c.endpointHealth,
		c.botActive,
		c.connectedUsers,
		c.qrPresent,
		c.toggles,
		c.notifications,
	)

	return c
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RequestCompleted records one backend request.
func (c *Collector) RequestCompleted(endpoint string, d time.Duration, ok bool) {
	c.pollRequests.WithLabelValues(endpoint, outcome(ok)).Inc()
	c.pollDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetEndpointHealth sets the health gauge for a polled endpoint.
func (c *Collector) SetEndpointHealth(endpoint string, healthy bool) {
	c.endpointHealth.WithLabelValues(endpoint).Set(boolGauge(healthy))
}

// SetBotActive records the parsed bot status.
func (c *Collector) SetBotActive(active bool) {
	c.botActive.Set(boolGauge(active))
}

// SetConnectedUsers records the last user count.
func (c *Collector) SetConnectedUsers(n int) {
	c.connectedUsers.Set(float64(n))
}

// SetQRPresent records whether a QR code is on display.
func (c *Collector) SetQRPresent(present bool) {
	c.qrPresent.Set(boolGauge(present))
}

// ToggleCompleted counts a session toggle.
func (c *Collector) ToggleCompleted(action string, ok bool) {
	c.toggles.WithLabelValues(action, outcome(ok)).Inc()
}

// NotificationRaised counts a dashboard notification.
func (c *Collector) NotificationRaised(level string) {
	c.notifications.WithLabelValues(level).Inc()
}
