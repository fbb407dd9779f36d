package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector using Prometheus metrics.
type PrometheusCollector struct {
	sessionsTotal  prometheus.Counter
	sessionsClosed *prometheus.CounterVec
	commandsTotal  *prometheus.CounterVec
	kicksTotal     prometheus.Counter
	tlsTotal       prometheus.Counter
	authTotal      *prometheus.CounterVec
	messagesTotal  prometheus.Counter
	messageSize    prometheus.Histogram
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtpd_sessions_total",
			Help: "Total number of SMTP sessions opened.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpd_sessions_closed_total",
			Help: "Total number of SMTP sessions closed, by reason.",
		}, []string{"reason"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpd_commands_total",
			Help: "Total number of SMTP commands processed.",
		}, []string{"verb"}),
		kicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtpd_kicks_total",
			Help: "Total number of sessions torn down by the kick heuristic.",
		}),
		tlsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtpd_tls_handshakes_total",
			Help: "Total number of successful TLS handshakes.",
		}),
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpd_auth_attempts_total",
			Help: "Total number of AUTH attempts.",
		}, []string{"result"}),
		messagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtpd_messages_accepted_total",
			Help: "Total number of messages accepted for delivery.",
		}),
		messageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smtpd_message_size_bytes",
			Help:    "Size of accepted messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 33554432},
		}),
	}

	reg.MustRegister(
		c.sessionsTotal,
		c.sessionsClosed,
		c.commandsTotal,
		c.kicksTotal,
		c.tlsTotal,
		c.authTotal,
		c.messagesTotal,
		c.messageSize,
	)

	return c
}

func (c *PrometheusCollector) SessionOpened() { c.sessionsTotal.Inc() }

func (c *PrometheusCollector) SessionClosed(reason string) {
	c.sessionsClosed.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) CommandProcessed(verb string) {
	c.commandsTotal.WithLabelValues(verb).Inc()
}

func (c *PrometheusCollector) Kicked() { c.kicksTotal.Inc() }

func (c *PrometheusCollector) TLSHandshake() { c.tlsTotal.Inc() }

func (c *PrometheusCollector) AuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authTotal.WithLabelValues(result).Inc()
}

func (c *PrometheusCollector) MessageAccepted(sizeBytes int64) {
	c.messagesTotal.Inc()
	c.messageSize.Observe(float64(sizeBytes))
}

// PrometheusServer exposes the default registry over HTTP.
type PrometheusServer struct {
	addr string
	path string
	srv  *http.Server
}

// NewPrometheusServer builds a metrics HTTP server bound to addr, serving
// the Prometheus exposition format at path.
func NewPrometheusServer(addr, path string) *PrometheusServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &PrometheusServer{
		addr: addr,
		path: path,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start begins serving metrics; it blocks until the context is canceled.
func (s *PrometheusServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the metrics server.
func (s *PrometheusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
