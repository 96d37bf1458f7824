package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Finalize outcomes recorded on orderdesk_finalize_total.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

type Registry struct {
	reg *prometheus.Registry

	RowsStaged      prometheus.Counter
	RowsSkipped     prometheus.Counter
	RowsUpdated     prometheus.Counter
	RowsDeleted     prometheus.Counter
	Finalize        *prometheus.CounterVec
	FinalizeLatency prometheus.Histogram
	BatchesDeleted  prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	rowsStaged := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderdesk_rows_staged_total"})
	rowsSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderdesk_rows_skipped_total"})
	rowsUpdated := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderdesk_rows_updated_total"})
	rowsDeleted := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderdesk_rows_deleted_total"})
	finalize := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderdesk_finalize_total"}, []string{"result"})
	finalizeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderdesk_finalize_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})
	batchesDeleted := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderdesk_batches_deleted_total"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderdesk_http_requests_total",
	}, []string{"method", "route", "status"})
	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orderdesk_http_request_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.MustRegister(
		rowsStaged, rowsSkipped, rowsUpdated, rowsDeleted,
		finalize, finalizeLatency, batchesDeleted,
		httpRequests, httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg:             r,
		RowsStaged:      rowsStaged,
		RowsSkipped:     rowsSkipped,
		RowsUpdated:     rowsUpdated,
		RowsDeleted:     rowsDeleted,
		Finalize:        finalize,
		FinalizeLatency: finalizeLatency,
		BatchesDeleted:  batchesDeleted,
		HTTPRequests:    httpRequests,
		HTTPLatency:     httpLatency,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// ObserveFinalize records one finalize attempt.
func (r *Registry) ObserveFinalize(result string, started time.Time) {
	r.Finalize.WithLabelValues(result).Inc()
	r.FinalizeLatency.Observe(time.Since(started).Seconds())
}

// Instrument counts requests by chi route pattern so ids in paths do not
// explode label cardinality.
func (r *Registry) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.HTTPRequests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		r.HTTPLatency.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}
