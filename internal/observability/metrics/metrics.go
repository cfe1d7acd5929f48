package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 是进程内统一的指标注册表，供 API、镜像节点客户端与执行引擎共享。
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		HTTPRequests, HTTPRequestErrors, HTTPRequestDuration,
		MirrorRequests, MirrorRetries, MirrorRequestDuration,
		Executions, OperationJobs,
	)
}

// HTTPRequests 按处理器、方法、状态码统计的请求数。
var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledgeragent_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	},
	[]string{"handler", "method", "code"},
)

// HTTPRequestErrors 返回 5xx 的请求数。
var HTTPRequestErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledgeragent_http_request_errors_total",
		Help: "Total number of HTTP requests that resulted in a server error.",
	},
	[]string{"handler", "method"},
)

// HTTPRequestDuration 请求耗时（秒）。
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ledgeragent_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"handler", "method"},
)

// MirrorRequests 镜像节点请求数，outcome 为 ok | retryable | fatal。
var MirrorRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledgeragent_mirror_requests_total",
		Help: "Mirror node HTTP attempts by outcome.",
	},
	[]string{"outcome"},
)

// MirrorRetries 镜像节点重试次数。
var MirrorRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ledgeragent_mirror_retries_total",
		Help: "Mirror node request retries.",
	},
)

// MirrorRequestDuration 单次镜像节点请求耗时（秒）。
var MirrorRequestDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "ledgeragent_mirror_request_duration_seconds",
		Help:    "Mirror node single attempt duration in seconds.",
		Buckets: prometheus.DefBuckets,
	},
)

// Executions 执行引擎结果，path 为 submit | schedule | bytes，result 为 success | failure。
var Executions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledgeragent_executions_total",
		Help: "Transaction executions by path and result.",
	},
	[]string{"path", "result"},
)

// OperationJobs 异步任务终态统计。
var OperationJobs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledgeragent_operation_jobs_total",
		Help: "Asynchronous operation jobs by terminal status.",
	},
	[]string{"status"},
)

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		HTTPRequestErrors.WithLabelValues(handler, method).Inc()
	}
	HTTPRequestDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveExecution 记录一次执行结果。
func ObserveExecution(path string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	Executions.WithLabelValues(path, result).Inc()
}

// Handler exposes the registry in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
