// Package api provides an HTTP API server for ingesting, reviewing, and
// recalling memory fact records.
package api

import "github.com/keepsake-sh/keepsake/pkg/memory"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// DefaultPolicy is applied when an ingest or turn request names none.
	DefaultPolicy memory.Policy
}
