// Package metrics exposes prometheus collectors for ledger transactions and
// registry operations, and a dedicated HTTP server publishing them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves /metrics on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the collectors registered in the default registry.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	if _, err := NewCollectors(namespace); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

// Collectors groups every metric the registry reports.
type Collectors struct {
	Transactions        *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	TreesCreated        prometheus.Counter
	LeavesMinted        *prometheus.CounterVec
}

// NewCollectors registers the collectors under namespace, reusing ones registered earlier.
func NewCollectors(namespace string) (*Collectors, error) {
	c := &Collectors{
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Executed transactions by instruction and outcome",
		}, []string{"instruction", "status"}),
		TransactionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transaction_duration_seconds",
			Help:      "Time spent executing a transaction, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instruction"}),
		TreesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "trees_created_total",
			Help:      "Trees provisioned through the registry",
		}),
		LeavesMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "leaves_minted_total",
			Help:      "Leaves appended through the registry",
		}, []string{"kind"}),
	}

	var err error
	if c.Transactions, err = register("transactions", c.Transactions); err != nil {
		return nil, err
	}
	if c.TransactionDuration, err = register("transaction duration", c.TransactionDuration); err != nil {
		return nil, err
	}
	if c.TreesCreated, err = register("trees created", c.TreesCreated); err != nil {
		return nil, err
	}
	if c.LeavesMinted, err = register("leaves minted", c.LeavesMinted); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](name string, collector T) (T, error) {
	err := prometheus.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return collector, fmt.Errorf("cannot register %s collector: %w", name, err)
}

// ObserveTransaction records the outcome of one ledger transaction. A nil receiver is a no-op.
func (c *Collectors) ObserveTransaction(instruction string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	c.Transactions.WithLabelValues(instruction, status).Inc()
	c.TransactionDuration.WithLabelValues(instruction).Observe(elapsed.Seconds())
}

// TreeCreated counts one provisioned tree. A nil receiver is a no-op.
func (c *Collectors) TreeCreated() {
	if c == nil {
		return
	}
	c.TreesCreated.Inc()
}

// LeafMinted counts one appended leaf of the given kind. A nil receiver is a no-op.
func (c *Collectors) LeafMinted(kind string) {
	if c == nil {
		return
	}
	c.LeavesMinted.WithLabelValues(kind).Inc()
}
