// Package server implements the HTTP API for contest administration, ballot
// submission, tallying, and result retrieval, with Prometheus-instrumented
// handlers.
package server
