// Package identity manages the local long-term key pairs.
//
// It creates key pairs on first use, publishes public keys to the registry,
// computes fingerprints, resets lost or compromised keys and wraps the key
// store backup with a passphrase strength policy.
package identity
