// Package metrics exposes the pipeline's operational counters on a
// dedicated Prometheus registry, mirroring internal/metrics/metrics.go's
// promauto/Registry/Serve shape with frostcore's own metric surface:
// chunking outcomes, multichunk fill, and block-level compression.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "frostcore"

var (
	// Registry is a dedicated Prometheus registry for all frostcore metrics.
	Registry = prometheus.NewRegistry()

	// ChunkTotal counts chunks produced by the chunker, by outcome: "new"
	// for content never seen before, "reuse" for a dedup hit.
	ChunkTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_total",
			Help:      "Total chunks produced by the content-defined chunker",
		},
		[]string{"outcome"}, // new | reuse
	)

	// ChunkDedupRatio tracks the instantaneous dedup ratio across chunks
	// processed so far.
	ChunkDedupRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunk_dedup_ratio",
			Help:      "reuse chunks / total chunks observed so far",
		},
	)

	// ChunkSizeBytes distributes emitted chunk sizes.
	ChunkSizeBytes = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_size_bytes",
			Help:      "Size distribution of chunks produced by the TTTD chunker",
			Buckets:   prometheus.ExponentialBuckets(512, 2, 8),
		},
	)

	// MultichunkFillRatio tracks how full a multichunk's data region was
	// when it was sealed (spec §4.4 FreeSpace/DataLen vs maxSize).
	MultichunkFillRatio = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "multichunk_fill_ratio",
			Help:      "DataLen / maxSize at the point a multichunk was sealed",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1.0},
		},
	)

	// MultichunkTotal counts sealed multichunks.
	MultichunkTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multichunk_total",
			Help:      "Total multichunks sealed and handed to the filter chain",
		},
	)

	// BlockTotal counts blocks processed by the streaming compressor, by
	// outcome: "compressed" or "stored" (spec §4.5 incompressibility
	// fallback).
	BlockTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_total",
			Help:      "Total blocks processed by the streaming compressor",
		},
		[]string{"outcome"}, // compressed | stored
	)

	// BlockCompressionRatio reports compressed/source byte ratio per block.
	BlockCompressionRatio = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_compression_ratio",
			Help:      "compressed bytes / source bytes for compressed blocks",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	// CompressDuration measures block-sorting compression call latency.
	CompressDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compress_duration_ms",
			Help:      "Duration of CompressStream calls in milliseconds",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// CatalogOpTotal counts catalog operations by kind and outcome.
	CatalogOpTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_op_total",
			Help:      "Total catalog operations",
		},
		[]string{"op", "outcome"}, // put|locate|gc, hit|miss|created
	)

	// AgentInfo exposes static information about the running process.
	AgentInfo = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_info",
			Help:      "Static information about the running process",
		},
		[]string{"os", "arch", "version"},
	)

	// Up is a liveness gauge.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if the process is running and healthy",
		},
	)
)

var (
	chunkTotalCount atomic.Int64
	chunkReuseCount atomic.Int64
)

func init() {
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	Registry.MustRegister(prometheus.NewGoCollector())
	Up.Set(1)
}

// SetAgentInfo publishes a single info metric for the running process.
func SetAgentInfo(osName, arch, version string) {
	if osName == "" {
		osName = runtime.GOOS
	}
	if arch == "" {
		arch = runtime.GOARCH
	}
	if version == "" {
		version = "dev"
	}
	AgentInfo.WithLabelValues(osName, arch, version).Set(1)
}

// ObserveChunk records a chunk outcome and updates the running dedup ratio.
func ObserveChunk(outcome string, size int) {
	if outcome != "reuse" {
		outcome = "new"
	}
	count := chunkTotalCount.Add(1)
	reused := chunkReuseCount.Load()
	if outcome == "reuse" {
		reused = chunkReuseCount.Add(1)
	}
	ChunkDedupRatio.Set(float64(reused) / float64(count))
	ChunkTotal.WithLabelValues(outcome).Inc()
	if size >= 0 {
		ChunkSizeBytes.Observe(float64(size))
	}
}

// ObserveMultichunkSealed records a sealed multichunk's fill ratio.
func ObserveMultichunkSealed(dataLen, maxSize int) {
	MultichunkTotal.Inc()
	if maxSize > 0 {
		MultichunkFillRatio.Observe(float64(dataLen) / float64(maxSize))
	}
}

// ObserveBlock records a processed block's outcome and, for compressed
// blocks, its compression ratio.
func ObserveBlock(compressed bool, sourceBytes, storedBytes int) {
	outcome := "stored"
	if compressed {
		outcome = "compressed"
	}
	BlockTotal.WithLabelValues(outcome).Inc()
	if compressed && sourceBytes > 0 {
		BlockCompressionRatio.Observe(float64(storedBytes) / float64(sourceBytes))
	}
}

// ObserveCompress tracks CompressStream call latency.
func ObserveCompress(start time.Time) {
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	CompressDuration.Observe(elapsed)
}

// ObserveCatalogOp records a catalog operation's kind and outcome.
func ObserveCatalogOp(op, outcome string) {
	CatalogOpTotal.WithLabelValues(op, outcome).Inc()
}

// SetUp toggles the liveness gauge.
func SetUp(healthy bool) {
	if healthy {
		Up.Set(1)
		return
	}
	Up.Set(0)
}

// Serve starts the /metrics HTTP endpoint on the provided address, shutting
// down cleanly when ctx is canceled.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Printf("[Metrics] Prometheus endpoint listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}

	return err
}
