// Package app wires application dependencies for the CLI and the daemon.
//
// It builds the key store, the log backend, the background task runner and
// the high-level services from a config.Config, exposing them via App.
package app
