// Package hostregistry implements the Host Registry: CRUD over Hosts and
// their encrypted credentials, the invariant that at most one Host is
// default, and the per-transport credential-completeness invariant from
// the data model. Every mutation publishes the Host's ID on a
// streams.Broker[string] so the Connection Manager invalidates its cached
// adapter instead of serving a stale one.
//
// Grounded on pkg/storage/boltdb.go's CRUD idiom and pkg/events/events.go's
// broker, now generalized as pkg/streams.Broker.
package hostregistry
