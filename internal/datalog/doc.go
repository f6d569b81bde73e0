// Package datalog provides the storage substrates behind the public message
// log and the public key registry.
//
// Every backend implements domain.Backend:
//   - Memory: process memory, append-only; every published version is kept
//     and returned by reads
//   - Redis: one hash per (schema, publisher) slot, one field per record
//   - Postgres: a single table keyed by (schema, publisher, record id)
//   - S3: one object per record under log/<schema>/<publisher>/
//   - HTTP: a client for the logd daemon (internal/logserver)
//
// Writes overwrite a record with the same key; nothing is ever removed.
// Reads return every row in a publisher slot with no filtering, so callers
// dedupe, filter and order client-side.
//
// The substrate trusts the publisher named in a write. Slot ownership is
// the log's concern, not this package's.
package datalog
