package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "pairscope"

// Pipeline holds the counters of the price replay. A nil *Pipeline is
// valid and records nothing.
type Pipeline struct {
	EventsProcessed *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	EventsSkipped   prometheus.Counter
	TokensUnpriced  prometheus.Counter
	WindowsFlushed  prometheus.Counter
	BasePriceUSD    prometheus.Gauge
	LastTimestamp   prometheus.Gauge
}

// New registers the pipeline metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Pipeline {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Pipeline{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "events_processed_total",
			Help:      "Pair events applied to the entity store",
		}, []string{"event"}),
		EventsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "events_failed_total",
			Help:      "Pair events whose transaction was discarded",
		}, []string{"event"}),
		EventsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "events_skipped_total",
			Help:      "Events at or before the resume point, or of unknown kind",
		}),
		TokensUnpriced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "tokens_unpriced_total",
			Help:      "Price discoveries that found no qualifying pool",
		}),
		WindowsFlushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "windows_flushed_total",
			Help:      "Pool window metrics written",
		}),
		BasePriceUSD: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "base_price_usd",
			Help:      "Latest USD anchor of the base asset",
		}),
		LastTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "last_event_timestamp_seconds",
			Help:      "Block timestamp of the last applied event",
		}),
	}
}

func (p *Pipeline) Processed(event string) {
	if p == nil {
		return
	}
	p.EventsProcessed.WithLabelValues(event).Inc()
}

func (p *Pipeline) Failed(event string) {
	if p == nil {
		return
	}
	p.EventsFailed.WithLabelValues(event).Inc()
}

func (p *Pipeline) Skipped() {
	if p == nil {
		return
	}
	p.EventsSkipped.Inc()
}

func (p *Pipeline) Unpriced() {
	if p == nil {
		return
	}
	p.TokensUnpriced.Inc()
}

func (p *Pipeline) Flushed(n int) {
	if p == nil {
		return
	}
	p.WindowsFlushed.Add(float64(n))
}

func (p *Pipeline) Anchor(price float64, ts uint64) {
	if p == nil {
		return
	}
	p.BasePriceUSD.Set(price)
	p.LastTimestamp.Set(float64(ts))
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
