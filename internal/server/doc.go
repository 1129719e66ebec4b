// Package server provides the process's HTTP surfaces.
//
// # Key Components
//
// HTTPServer serves Kubernetes probes and the Google OAuth callback:
//   - /healthz: liveness
//   - /readyz: readiness, pings the database
//   - /healthz/detailed: version, uptime and individual checks
//   - /oauth/callback: completes the /connect flow
//
// MetricsServer exposes /metrics for Prometheus on a separate port so
// operational data is not reachable through the public callback address.
package server
