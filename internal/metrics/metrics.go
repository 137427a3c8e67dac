package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Histogram: playground HTTP latency in seconds.
	HTTPLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playground_http_latency_seconds",
			Help:    "HTTP request latency for the playground service in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"route", "method", "status_code"},
	)

	// Counter: upstream provider requests by final HTTP status ("error" for network failures).
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_upstream_requests_total",
			Help: "Total number of upstream LLM API requests.",
		},
		[]string{"provider", "mode", "status"},
	)

	// Histogram: time until upstream response headers arrive.
	UpstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playground_upstream_latency_seconds",
			Help:    "Latency until upstream response headers, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "mode"},
	)

	StreamChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_stream_chunks_total",
			Help: "Total number of text deltas emitted from streaming responses.",
		},
		[]string{"provider"},
	)

	// Counter: frames that could not be parsed and were skipped.
	StreamFramesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_stream_frames_skipped_total",
			Help: "Total number of malformed stream frames skipped.",
		},
		[]string{"provider"},
	)

	// Counter: credential store operations by result (hit | miss | ok | error).
	StoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_store_ops_total",
			Help: "Total number of credential store operations.",
		},
		[]string{"op", "result"},
	)
)

var registerOnce sync.Once

// Register is called once in main() to register metrics.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPLatencySeconds,
			UpstreamRequestsTotal,
			UpstreamLatencySeconds,
			StreamChunksTotal,
			StreamFramesSkippedTotal,
			StoreOpsTotal,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request, labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		// route pattern keeps label cardinality bounded (no raw config keys)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		HTTPLatencySeconds.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Flush keeps SSE responses streaming through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("metrics: underlying ResponseWriter does not support hijacking")
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
