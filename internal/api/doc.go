// Package api exposes the operational HTTP surface of a pipeline run:
// a liveness probe, the latest progress snapshot and Prometheus metrics.
package api
