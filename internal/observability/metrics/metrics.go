package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "droidrelay"

// Collector 汇总 HTTP 请求与账号引导的运行指标，每个实例持有独立的注册表。
type Collector struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	bootstrap *prometheus.CounterVec
}

// NewCollector 创建并注册全部指标。
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"handler", "method"}),
		bootstrap: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "runs_total",
			Help:      "Droid account bootstrap runs by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(c.requests, c.latency, c.bootstrap)
	return c
}

var defaultCollector = NewCollector()

// Default 返回进程级收集器。
func Default() *Collector { return defaultCollector }

// ObserveHTTPRequest records one finished HTTP request.
func (c *Collector) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c.requests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveBootstrap 记录一次账号引导的结果。
func (c *Collector) ObserveBootstrap(outcome string) {
	c.bootstrap.WithLabelValues(outcome).Inc()
}

// Instrument 包装处理器，按 handler 名称记录请求数与延迟。
func (c *Collector) Instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.ObserveHTTPRequest(handler, r.Method, rec.status, time.Since(start))
	})
}

// Handler exposes the metrics in Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
