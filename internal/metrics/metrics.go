// Package metrics 定义Prometheus指标, metrics.listen 配置后通过HTTP暴露
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricecorrector"

var (
	// ScrapeOutcomes 价格抓取结果: ok / no_price / error
	ScrapeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_outcomes_total",
		Help:      "Price scrape attempts by outcome.",
	}, []string{"outcome"})

	// BlockDetections 命中的拦截标记
	BlockDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "block_detections_total",
		Help:      "Anti-bot block pages detected, by marker.",
	}, []string{"marker"})

	// IdentityRotations 身份轮换次数
	IdentityRotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "identity_rotations_total",
		Help:      "Proxy/user-agent rotations.",
	})

	// TrafficBytes 浏览器流量
	TrafficBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "traffic_bytes_total",
		Help:      "Bytes transferred by render sessions.",
	}, []string{"direction"})

	// PriceSubmissions 价格提交结果: ok / rejected / not_updated / exhausted / error
	PriceSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "price_submissions_total",
		Help:      "Price update submissions by outcome.",
	}, []string{"outcome"})

	// APILatency 卖家接口耗时
	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Seller API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "status"})
)

// Serve 在addr上暴露 /metrics, ctx结束时关闭
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
