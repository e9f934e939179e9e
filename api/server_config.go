package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the registry API server.
type HTTPServerConfig struct {
	ListenAddr string

	// MetricsAddr is where prometheus metrics are served. Empty disables the metrics server.
	MetricsAddr string

	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long /drain keeps the server reporting not ready before
	// load balancers are expected to have stopped routing to it.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds the wait for in-flight requests on shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RequestTimeout cancels the context of API requests, and with it the ledger
	// transaction they submit. Zero disables it.
	RequestTimeout time.Duration
}
