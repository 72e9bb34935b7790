// Package metrics exposes Prometheus collectors for the DroidRelay API and
// the startup account bootstrap.
package metrics
