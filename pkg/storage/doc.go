// Package storage provides BoltDB-backed persistence for the control
// plane's state: users, refresh tokens, hosts, host credentials, host
// permissions, audit events, and wizard instances.
//
// Each entity type lives in its own bucket, keyed by ID, values JSON
// marshaled. Update and Create share one implementation (bbolt's Put is
// already an upsert); Delete is idempotent. Reads use db.View, writes use
// db.Update, matching bbolt's single-writer/many-readers model.
package storage
