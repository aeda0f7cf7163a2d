package model

// Conn is a node-local, writable handle for one live client connection.
// Implementations must make Send safe for concurrent use: the registry
// writes to a handle while holding its lock, and relay callbacks race
// with the connection's own handler goroutine.
type Conn interface {
	// ID identifies the handle for logging. Two handles never share an ID.
	ID() string
	// Send writes one framed payload to the client.
	Send(payload []byte) error
	// Close tears down the underlying transport. Idempotent.
	Close() error
}
