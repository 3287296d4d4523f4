// Package metrics exposes Prometheus metrics for the player engine, the
// push hub and the HTTP surface.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/openfm/internal/app/playback"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/peer"
)

const namespace = "openfm"

// Metrics holds every collector on a private registry. It implements
// playback.Observer and notification.Observer.
type Metrics struct {
	registry *prometheus.Registry

	commands     *prometheus.CounterVec
	staleReports *prometheus.CounterVec
	tracksArmed  *prometheus.CounterVec
	crossfades   prometheus.Counter
	clients      *prometheus.GaugeVec
	clientDrops  *prometheus.CounterVec
	broadcasts   *prometheus.CounterVec
	recipients   prometheus.Histogram
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with Go runtime metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Playback commands handled, by command and result.",
		}, []string{"command", "result"}),
		staleReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_reports_total",
			Help:      "Renderer reports dropped because they named a track that is no longer current.",
		}, []string{"command"}),
		tracksArmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_armed_total",
			Help:      "Tracks armed for playback, by mood.",
		}, []string{"mood"}),
		crossfades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crossfades_total",
			Help:      "Crossfades started.",
		}),
		clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients",
			Help:      "Connected push clients, by transport.",
		}, []string{"transport"}),
		clientDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_drops_total",
			Help:      "Push clients dropped because their buffer was full.",
		}, []string{"transport"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_broadcast_total",
			Help:      "Push messages broadcast, by type.",
		}, []string{"type"}),
		recipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_recipients",
			Help:      "Clients reached per broadcast.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands, m.staleReports, m.tracksArmed, m.crossfades,
		m.clients, m.clientDrops, m.broadcasts, m.recipients,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CommandHandled implements playback.Observer.
func (m *Metrics) CommandHandled(name string, err error) {
	m.commands.WithLabelValues(name, result(err)).Inc()
}

// StaleReport implements playback.Observer.
func (m *Metrics) StaleReport(name string) {
	m.staleReports.WithLabelValues(name).Inc()
}

// TrackArmed implements playback.Observer.
func (m *Metrics) TrackArmed(md mood.ID) {
	m.tracksArmed.WithLabelValues(string(md)).Inc()
}

// CrossfadeStarted implements playback.Observer.
func (m *Metrics) CrossfadeStarted() {
	m.crossfades.Inc()
}

// ClientConnected implements notification.Observer.
func (m *Metrics) ClientConnected(t peer.Transport) {
	m.clients.WithLabelValues(string(t)).Inc()
}

// ClientDisconnected implements notification.Observer.
func (m *Metrics) ClientDisconnected(t peer.Transport) {
	m.clients.WithLabelValues(string(t)).Dec()
}

// ClientDropped implements notification.Observer.
func (m *Metrics) ClientDropped(t peer.Transport) {
	m.clientDrops.WithLabelValues(string(t)).Inc()
}

// MessageBroadcast implements notification.Observer.
func (m *Metrics) MessageBroadcast(msgType string, recipients int) {
	m.broadcasts.WithLabelValues(msgType).Inc()
	m.recipients.Observe(float64(recipients))
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, playback.ErrValidation):
		return "invalid"
	case errors.Is(err, playback.ErrNotFound):
		return "not_found"
	case errors.Is(err, playback.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets WebSocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request counts and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
