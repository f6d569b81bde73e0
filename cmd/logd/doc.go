// Package main runs logd, the HTTP log and key registry that cipherlog
// clients use through the "http" backend. Storage is whichever backend the
// configuration selects (memory, redis, postgres or s3).
//
// HTTP API
//
//	POST /v1/records
//	    Append a batch of records to the publisher's slot.
//
//	GET /v1/records/{schema}/{publisher}
//	    Return every record the publisher wrote under the schema id.
//
//	PUT /v1/registry/{address}
//	    Store the address's X25519 public key.
//
//	GET /v1/registry/{address}
//	    Return the stored public key, or 404.
//
//	GET /healthz, GET /metrics
//
// Behaviour
//
//   - Records and keys are public; logd never sees plaintext or private keys.
//   - The publisher in the path is trusted. Deploy behind something that
//     authenticates writers.
//   - The default listen address is :8080.
package main
