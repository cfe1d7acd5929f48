// Package api exposes the REST surface of the daemon: synchronous and queued
// operation calls, job lookup and listing, the operation catalog, health and
// Prometheus metrics.
package api
