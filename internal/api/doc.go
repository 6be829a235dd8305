// Package api hosts the operator HTTP listener that runs alongside an
// ingestion run. Routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the pipeline's current state and queue depth.
package api
