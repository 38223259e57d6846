// Package adapter holds the protocol-independent server plumbing: the
// Adapter lifecycle interface and BaseAdapter, the shared TCP accept loop.
package adapter

import "context"

// Adapter is a protocol server that can be started and stopped by the
// process that owns it.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration
//  2. Serve() starts listening and blocks until shutdown
//  3. Stop() initiates graceful shutdown, bounded by its context
//
// Stop may be called concurrently with Serve and more than once.
type Adapter interface {
	// Serve blocks until ctx is cancelled or the listener fails. It returns
	// nil after a graceful shutdown.
	Serve(ctx context.Context) error

	// Stop stops accepting connections and waits for active ones to finish.
	Stop(ctx context.Context) error

	// Protocol is the name used in logs and metrics, e.g. "SMB".
	Protocol() string

	// Port is the configured TCP port.
	Port() int
}
