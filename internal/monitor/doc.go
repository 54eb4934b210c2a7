// Package monitor tracks process resources and task throughput.
//
// A Monitor keeps lightweight in-process counters for the /health endpoint and
// the per-task RESOURCE_START / RESOURCE_END log lines, and mirrors them into
// Prometheus metrics on a private registry served at /metrics.
package monitor
