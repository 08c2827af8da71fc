package transport

import "context"

// Bundle is a received opaque payload, tagged with the local service
// number it arrived on and the sending node's id.
type Bundle struct {
	LocalService uint16
	From         uint64
	Payload      []byte
}

// Adapter sends and receives opaque bundle payloads. Concurrent Send and
// Receive from distinct goroutines is required and is a property of the
// implementation, not of the engine: the transport endpoint must be safe
// for one goroutine to send on while another receives.
type Adapter interface {
	// Send delivers payload to dst. ttl bounds how long the bundle may sit
	// in a queue before delivery is abandoned.
	Send(ctx context.Context, dst Endpoint, payload []byte, ttl uint16) error

	// Receive blocks until a bundle arrives on one of the services this
	// adapter is listening for, or ctx is done.
	Receive(ctx context.Context) (Bundle, error)

	// Close shuts down the adapter and interrupts any blocked Receive.
	Close() error
}
