// Package memzero wipes key material held in byte slices.
package memzero

import "runtime"

// Zero clears b in place. Use it on derived keys and ephemeral private keys
// once the AEAD or key agreement that needed them has run.
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}
