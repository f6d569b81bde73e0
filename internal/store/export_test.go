package store

func init() {
	// Keep backup tests fast.
	defaultScrypt = scryptParams{N: 1 << 10, R: 8, P: 1}
}
