// Package metrics exposes Prometheus collectors for envelope traffic on a
// dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lovefi_agent"

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder is nil-safe: every method on a nil *Recorder is a no-op.
type Recorder struct {
	registry          *prometheus.Registry
	envelopesBuilt    *prometheus.CounterVec
	envelopesVerified *prometheus.CounterVec
	sendAttempts      *prometheus.CounterVec
	sendDuration      *prometheus.HistogramVec
	rateLimited       prometheus.Counter
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		envelopesBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_built_total",
			Help:      "Signed envelopes built, by schema and result.",
		}, []string{"schema", "result"}),
		envelopesVerified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_verified_total",
			Help:      "Inbound envelope verifications, by reject code (ok on success).",
		}, []string{"code"}),
		sendAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_attempts_total",
			Help:      "HTTP send attempts, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		sendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transport_send_seconds",
			Help:      "Wall time of a full send including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receiver_rate_limited_total",
			Help:      "Inbound envelopes rejected by the per-sender rate limit.",
		}),
	}
}

func (r *Recorder) EnvelopeBuilt(schema string, err error) {
	if r == nil {
		return
	}
	r.envelopesBuilt.WithLabelValues(schema, result(err)).Inc()
}

// EnvelopeVerified records a verification outcome; code is empty on success.
func (r *Recorder) EnvelopeVerified(code string) {
	if r == nil {
		return
	}
	if code == "" {
		code = ResultOK
	}
	r.envelopesVerified.WithLabelValues(code).Inc()
}

func (r *Recorder) SendAttempt(endpoint, outcome string) {
	if r == nil {
		return
	}
	r.sendAttempts.WithLabelValues(endpoint, outcome).Inc()
}

func (r *Recorder) SendFinished(started time.Time, err error) {
	if r == nil {
		return
	}
	r.sendDuration.WithLabelValues(result(err)).Observe(time.Since(started).Seconds())
}

func (r *Recorder) RateLimited() {
	if r == nil {
		return
	}
	r.rateLimited.Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
