// Package transport sends and receives opaque bundle payloads to/from
// ipn:<node>.<service> endpoints. The framing and listen/dial shape follow
// munonun-Web4's own QUIC transport; BPv7 bundle delivery itself has no Go
// binding available here, so QUIC stands in as the convergence layer —
// any router/transport pair exposing the same Adapter operations is an
// acceptable substitute.
package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// Endpoint is an ipn:<node>.<service> address.
type Endpoint struct {
	Node    uint64
	Service uint16
}

// String renders the canonical "ipn:<node>.<service>" form.
func (e Endpoint) String() string {
	return fmt.Sprintf("ipn:%d.%d", e.Node, e.Service)
}

// ParseEndpoint parses the canonical "ipn:<node>.<service>" form.
func ParseEndpoint(s string) (Endpoint, error) {
	const prefix = "ipn:"
	if !strings.HasPrefix(s, prefix) {
		return Endpoint{}, fmt.Errorf("endpoint %q missing %q prefix", s, prefix)
	}
	rest := s[len(prefix):]
	dot := strings.LastIndexByte(rest, '.')
	if dot < 0 {
		return Endpoint{}, fmt.Errorf("endpoint %q missing node.service separator", s)
	}
	node, err := strconv.ParseUint(rest[:dot], 10, 64)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q has invalid node: %w", s, err)
	}
	svc, err := strconv.ParseUint(rest[dot+1:], 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q has invalid service: %w", s, err)
	}
	return Endpoint{Node: node, Service: uint16(svc)}, nil
}
