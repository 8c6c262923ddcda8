package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type instrumented struct {
	next     Backend
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Instrument wraps b so every call is counted and timed. The collectors are
// registered with reg.
func Instrument(b Backend, reg prometheus.Registerer) Backend {
	i := &instrumented{
		next: b,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threads",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Number of backend operations by result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "threads",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Backend operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(i.ops, i.duration)
	return i
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "miss"
	case err != nil:
		result = "error"
	}
	i.ops.WithLabelValues(op, result).Inc()
	i.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := i.next.Get(ctx, key)
	i.observe("get", start, err)
	return v, err
}

func (i *instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := i.next.Set(ctx, key, value)
	i.observe("set", start, err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.next.Delete(ctx, key)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	start := time.Now()
	err := i.next.Update(ctx, key, fn)
	i.observe("update", start, err)
	return err
}
