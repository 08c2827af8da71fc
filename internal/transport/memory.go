package transport

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-process Adapter that routes sends directly into the
// destination node's inbound channel via a shared Network, used by engine
// tests to exercise the protocol without real sockets and assert exactly
// which sends and receives occurred.
type Memory struct {
	node    uint64
	network *Network
	incoming chan Bundle
	closed  chan struct{}
	once    sync.Once
}

// Network is a shared registry of Memory adapters keyed by node id,
// standing in for the address resolution a real deployment gets from
// AddressBook.
type Network struct {
	mu    sync.Mutex
	peers map[uint64]*Memory

	mu2   sync.Mutex
	sent  []Sent
}

// Sent records one observed Send call, for test assertions.
type Sent struct {
	From, To Endpoint
	Payload  []byte
}

// NewNetwork builds an empty shared Network.
func NewNetwork() *Network {
	return &Network{peers: make(map[uint64]*Memory)}
}

// NewAdapter registers and returns a Memory adapter for node on n.
func (n *Network) NewAdapter(node uint64) *Memory {
	m := &Memory{node: node, network: n, incoming: make(chan Bundle, 256), closed: make(chan struct{})}
	n.mu.Lock()
	n.peers[node] = m
	n.mu.Unlock()
	return m
}

// Sent returns every payload sent across the network so far, in order.
func (n *Network) Sent() []Sent {
	n.mu2.Lock()
	defer n.mu2.Unlock()
	out := make([]Sent, len(n.sent))
	copy(out, n.sent)
	return out
}

// Reset clears the recorded send log without tearing down registered peers.
func (n *Network) Reset() {
	n.mu2.Lock()
	defer n.mu2.Unlock()
	n.sent = nil
}

func (m *Memory) Send(ctx context.Context, dst Endpoint, payload []byte, ttl uint16) error {
	m.network.mu2.Lock()
	m.network.sent = append(m.network.sent, Sent{From: Endpoint{Node: m.node}, To: dst, Payload: append([]byte{}, payload...)})
	m.network.mu2.Unlock()

	m.network.mu.Lock()
	dstAdapter, ok := m.network.peers[dst.Node]
	m.network.mu.Unlock()
	if !ok {
		return errors.New("memory transport: no adapter registered for destination node")
	}
	select {
	case dstAdapter.incoming <- Bundle{LocalService: dst.Service, From: m.node, Payload: append([]byte{}, payload...)}:
		return nil
	case <-dstAdapter.closed:
		return errors.New("memory transport: destination closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Receive(ctx context.Context) (Bundle, error) {
	select {
	case b := <-m.incoming:
		return b, nil
	case <-ctx.Done():
		return Bundle{}, ctx.Err()
	case <-m.closed:
		return Bundle{}, errors.New("memory transport: closed")
	}
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

var _ Adapter = (*Memory)(nil)
