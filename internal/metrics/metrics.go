package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Source metrics
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wtmpd_records_total",
			Help: "Total number of login records emitted",
		},
		[]string{"file", "type"},
	)

	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wtmpd_decode_errors_total",
			Help: "Total number of records that failed to decode",
		},
		[]string{"file"},
	)

	FileOffset = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wtmpd_file_offset_bytes",
			Help: "Acknowledged read offset per file",
		},
		[]string{"file"},
	)

	// Destination metrics
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wtmpd_destination_batches_total",
			Help: "Total number of batches flushed to a destination",
		},
		[]string{"destination", "status"},
	)

	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wtmpd_destination_flush_duration_seconds",
			Help:    "Duration of destination flushes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination"},
	)
)

// ObserveFlush records the outcome of one flush started at start.
func ObserveFlush(destination string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	BatchesTotal.WithLabelValues(destination, status).Inc()
	FlushDuration.WithLabelValues(destination).Observe(time.Since(start).Seconds())
}

// Server exposes the default registry on /metrics.
type Server struct {
	addr string
}

func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errC := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("serving metrics on %s", s.addr))
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return fmt.Errorf("metrics: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
