// Package logserver serves a log backend over HTTP for the HTTP client
// backend in package datalog.
//
// Routes:
//
//	POST /v1/records                       publish records into a slot
//	GET  /v1/records/:schema/:publisher    read every row of a slot
//	PUT  /v1/registry/:address             register a public key
//	GET  /v1/registry/:address             fetch a public key
//	GET  /healthz                          liveness
//	GET  /metrics                          prometheus metrics
//
// Writes are signed. The first PUT /v1/registry for an address binds the
// Ed25519 signing key it carries; later registry writes must be signed by the
// bound key, and every publish must be signed by the bound key of its
// publisher. Signed requests carry a millisecond timestamp and a nonce; the
// server refuses timestamps outside ClockSkew and nonces it has already seen.
// Bindings are stored in the backend under a reserved schema.
package logserver
