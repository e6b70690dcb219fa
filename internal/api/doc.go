// Package api hosts the read-only HTTP lookup surface. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/versions lists archived versions and the pointer.
//   - GET /v1/source/{domain}/{kind} renders the context window of one line.
//   - POST /v1/trace/{domain}/{kind} renders every line found in a pasted
//     stack trace or log scan.
package api
