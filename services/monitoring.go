package services

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// Gateway metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total admission failures by taxonomy code",
		},
		[]string{"code"},
	)

	rateLimitBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_blocks_total",
			Help: "Total rate limit block transitions",
		},
		[]string{"endpoint", "axis"},
	)

	identityCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_cache_lookups_total",
			Help: "Identity cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)

// System metrics
var (
	heapAllocBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heap_alloc_bytes",
			Help: "Heap memory allocated in bytes",
		},
	)

	gcTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gc_total",
			Help: "Total number of garbage collections",
		},
	)
)

type MonitoringService struct {
	context.DefaultService

	registry *prometheus.Registry
	port     int
	server   *http.Server
}

func (svc MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Configure(ctx *context.Context) error {
	svc.port = DEFAULT_PROMETHEUS_PORT
	if port := os.Getenv("PROMETHEUS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			svc.port = p
		}
	}

	svc.registry = prometheus.NewRegistry()
	svc.registry.MustRegister(
		httpRequestsTotal,
		authFailuresTotal,
		rateLimitBlocksTotal,
		identityCacheLookupsTotal,
		heapAllocBytes,
		gcTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return svc.DefaultService.Configure(ctx)
}

func (svc *MonitoringService) Start() error {
	go svc.collectSystemMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{}))

	svc.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", svc.port),
		Handler: mux,
	}

	go func() {
		log.Info().Int("port", svc.port).Msg("Prometheus metrics listening")
		if err := svc.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	return nil
}

func (svc *MonitoringService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Close()
	}
}

func (svc *MonitoringService) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var lastGC uint32
	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		heapAllocBytes.Set(float64(m.HeapAlloc))
		if m.NumGC > lastGC {
			gcTotal.Add(float64(m.NumGC - lastGC))
			lastGC = m.NumGC
		}
	}
}
