// Package conn implements the Connection Manager: a pool of live Docker
// transport adapters, one per Host, each guarded by its own circuit
// breaker and kept warm by a periodic Ping probe.
//
// The probe loop is grounded on the reconciler's ticker-driven sweep
// (reconcile nodes on an interval, log and continue past per-node errors)
// and on the health package's Status/Config vocabulary, collapsed here to
// the single checker kind this domain has: a Docker Ping.
package conn
