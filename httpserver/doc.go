/*
Package httpserver serves the registry API over HTTP.

Handler translates requests into calls on an interfaces.Registry (normally a
registry.Client signing with the server's payer identity) and an optional
storage.MetadataStore publishing off-chain JSON. Server wraps the handler with
access logging, panic recovery, a per-request timeout, health endpoints and a
separate Prometheus metrics listener.

# Routes

The routes and their request and response bodies are listed in package api. Every
state-changing route submits exactly one ledger transaction and returns its receipt;
mints additionally return the recovered leaf index, sequence number and asset id.

# Health and Diagnostics

  - GET /livez: liveness check
  - GET /readyz: registry status (program, payer, tree count), 503 while draining or
    when the registry state cannot be read
  - GET /drain: mark the server not ready ahead of a shutdown
  - GET /undrain: mark the server ready again
  - /debug/pprof: profiling, enabled with --pprof

# Errors

Failures are returned as api.ErrorResponse. RequestError carries a status code chosen
while parsing the request; registry and storage sentinels are mapped by statusCode.
*/
package httpserver
