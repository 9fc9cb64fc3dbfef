// Package metrics exposes the server's Prometheus collectors and the HTTP
// endpoint that serves them. It is purely observational: nothing here
// participates in protocol behavior or the IRC readiness set, matching the
// "logging/metrics are an ambient concern, not a protocol one" boundary.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements ircd.Metrics, backed by Prometheus gauges and a
// counter.
type Collector struct {
	clientsConnected prometheus.Gauge
	channelsActive   prometheus.Gauge
	commandsTotal    *prometheus.CounterVec
}

// New registers and returns a Collector. Call it once per process.
func New() *Collector {
	return &Collector{
		clientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "ftircd",
			Name:      "clients_connected",
			Help:      "Number of currently connected clients.",
		}),
		channelsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "ftircd",
			Name:      "channels_active",
			Help:      "Number of currently live channels.",
		}),
		commandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftircd",
			Name:      "commands_processed_total",
			Help:      "Number of valid commands processed, by command name.",
		}, []string{"command"}),
	}
}

func (c *Collector) ClientConnected()    { c.clientsConnected.Inc() }
func (c *Collector) ClientDisconnected() { c.clientsConnected.Dec() }
func (c *Collector) ChannelCreated()     { c.channelsActive.Inc() }
func (c *Collector) ChannelDestroyed()   { c.channelsActive.Dec() }

func (c *Collector) CommandProcessed(name string) {
	c.commandsTotal.WithLabelValues(name).Inc()
}

// Serve runs an HTTP server exposing /metrics on addr. It blocks until the
// server stops, which only happens on an unrecoverable listen error -- the
// metrics endpoint is independent of the IRC listener's lifecycle.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
