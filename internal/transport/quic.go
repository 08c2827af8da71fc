package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	quic "github.com/quic-go/quic-go"

	"dtnex/internal/crypto"
)

// wire framing: [8-byte source node id][2-byte destination service]
// [4-byte BigEndian plaintext length][24-byte XChaCha20-Poly1305 nonce]
// [sealed payload]. BPv7/ipn addressing names a source and destination
// service number that the convergence layer itself has no notion of, so
// both travel as a small header ahead of the envelope, the way
// munonun-Web4's own internal/proto/envelope.go prefixes frames with a
// length header; this adds only the discriminators QUIC lacks. The source
// node id lets the echo responder (internal/echo) reply without the DTN
// envelope itself carrying transport-layer addressing.
//
// The payload is sealed with internal/crypto's XChaCha20-Poly1305 AEAD,
// keyed from the network's shared MAC secret (config.Config.SharedKey),
// using the plaintext header as associated data. devTLS's client-side
// InsecureSkipVerify means QUIC's own TLS does not authenticate which
// peer is on the other end of a dial; this seal is what actually binds a
// frame to a holder of the network's shared key, the same trust anchor
// envelope MACs rely on.
const frameHeaderSize = 8 + 2 + 4
const nonceSize = crypto.XNonceSize

const sealKeyLabel = "dtnex:transport:seal:v1"

// AddressBook resolves a DTNEX node id to the network address its
// transport listener is reachable at. A static map is sufficient: this
// agent does not perform neighbor discovery, so entries are always
// provided by configuration.
type AddressBook struct {
	mu   sync.RWMutex
	addr map[uint64]string
}

// NewAddressBook builds an AddressBook from an initial node->addr mapping.
func NewAddressBook(initial map[uint64]string) *AddressBook {
	b := &AddressBook{addr: make(map[uint64]string, len(initial))}
	for k, v := range initial {
		b.addr[k] = v
	}
	return b
}

// Set records or replaces the address for a node id.
func (b *AddressBook) Set(node uint64, addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addr[node] = addr
}

// Lookup returns the address for a node id, if known.
func (b *AddressBook) Lookup(node uint64) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.addr[node]
	return a, ok
}

// QUICTransport is the reference transport Adapter, backed by QUIC streams
// grounded on munonun-Web4's internal/network/quic.go ListenAndServe/Send
// pair, generalized from a single JSON frame per stream to the
// service-tagged envelope framing above, and from a one-shot dial-per-send
// to a connection pool so the engine's repeated per-neighbor sends do not
// pay a fresh handshake every broadcast cycle.
type QUICTransport struct {
	listenAddr string
	localNode  uint64
	sealKey    []byte
	tlsServer  *tls.Config
	tlsClient  *tls.Config
	addrBook   *AddressBook

	listener *quic.Listener
	incoming chan Bundle

	connMu sync.Mutex
	conns  map[string]quic.Connection

	closeOnce sync.Once
	closed    chan struct{}
}

// NewQUICTransport starts listening on listenAddr for DTNEX bundles. When
// devTLS is true (and only then — it refuses to start otherwise) a
// freshly generated self-signed certificate is used; production deployments
// should supply a real certificate via a future option instead.
func NewQUICTransport(ctx context.Context, listenAddr string, localNode uint64, sharedKey string, addrBook *AddressBook, devTLS bool) (*QUICTransport, error) {
	if !devTLS {
		return nil, errors.New("transport: only devTLS self-signed certificates are implemented; refusing to start without --devtls")
	}
	cert, err := devTLSCert()
	if err != nil {
		return nil, fmt.Errorf("transport: generate dev tls cert: %w", err)
	}
	t := &QUICTransport{
		listenAddr: listenAddr,
		localNode:  localNode,
		sealKey:    crypto.KDF(sealKeyLabel, []byte(sharedKey)),
		tlsServer:  &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{"dtnex"}},
		tlsClient:  &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"dtnex"}},
		addrBook:   addrBook,
		incoming:   make(chan Bundle, 256),
		conns:      make(map[string]quic.Connection),
		closed:     make(chan struct{}),
	}

	ln, err := quic.ListenAddr(listenAddr, t.tlsServer, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", listenAddr, err)
	}
	t.listener = ln
	go t.acceptLoop(ctx)
	return t, nil
}

func (t *QUICTransport) acceptLoop(ctx context.Context) {
	for {
		conn, err := t.listener.Accept(ctx)
		if err != nil {
			return
		}
		go t.serveConn(ctx, conn)
	}
}

func (t *QUICTransport) serveConn(ctx context.Context, conn quic.Connection) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go t.serveStream(stream)
	}
}

func (t *QUICTransport) serveStream(stream quic.Stream) {
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil || len(data) < frameHeaderSize+nonceSize {
		return
	}
	from := binary.BigEndian.Uint64(data[:8])
	service := binary.BigEndian.Uint16(data[8:10])
	n := binary.BigEndian.Uint32(data[10:14])
	header := data[:frameHeaderSize]
	nonce := data[frameHeaderSize : frameHeaderSize+nonceSize]
	sealed := data[frameHeaderSize+nonceSize:]
	payload, err := crypto.XOpen(t.sealKey, nonce, sealed, header)
	if err != nil || int(n) != len(payload) {
		return
	}
	select {
	case t.incoming <- Bundle{LocalService: service, From: from, Payload: payload}:
	case <-t.closed:
	}
}

// Send opens (or reuses) a connection to dst's address and writes one
// stream carrying the service-tagged frame. ttl is accepted for interface
// symmetry with the bundle protocol's TTL but QUIC streams have no
// independent expiry of their own; callers that need ttl enforced at the
// application layer should check expire_time before calling Send, which
// the protocol engine already does.
func (t *QUICTransport) Send(ctx context.Context, dst Endpoint, payload []byte, ttl uint16) error {
	addr, ok := t.addrBook.Lookup(dst.Node)
	if !ok {
		return fmt.Errorf("transport: no known address for node %d", dst.Node)
	}
	conn, err := t.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		t.dropConn(addr)
		return fmt.Errorf("transport: open stream to %s: %w", addr, err)
	}
	defer stream.Close()

	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], t.localNode)
	binary.BigEndian.PutUint16(header[8:10], dst.Service)
	binary.BigEndian.PutUint32(header[10:14], uint32(len(payload)))

	nonce, sealed, err := crypto.XSeal(t.sealKey, payload, header)
	if err != nil {
		return fmt.Errorf("transport: seal payload: %w", err)
	}
	frame := make([]byte, 0, frameHeaderSize+nonceSize+len(sealed))
	frame = append(frame, header...)
	frame = append(frame, nonce...)
	frame = append(frame, sealed...)

	if _, err := stream.Write(frame); err != nil {
		t.dropConn(addr)
		return fmt.Errorf("transport: write to %s: %w", addr, err)
	}
	return nil
}

func (t *QUICTransport) dial(ctx context.Context, addr string) (quic.Connection, error) {
	t.connMu.Lock()
	if c, ok := t.conns[addr]; ok {
		t.connMu.Unlock()
		return c, nil
	}
	t.connMu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := quic.DialAddr(dialCtx, addr, t.tlsClient, nil)
	if err != nil {
		return nil, err
	}
	t.connMu.Lock()
	t.conns[addr] = conn
	t.connMu.Unlock()
	return conn, nil
}

func (t *QUICTransport) dropConn(addr string) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	delete(t.conns, addr)
}

func (t *QUICTransport) Receive(ctx context.Context) (Bundle, error) {
	select {
	case b := <-t.incoming:
		return b, nil
	case <-ctx.Done():
		return Bundle{}, ctx.Err()
	case <-t.closed:
		return Bundle{}, errors.New("transport: closed")
	}
}

func (t *QUICTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.listener.Close()
		t.connMu.Lock()
		for _, c := range t.conns {
			_ = c.CloseWithError(0, "shutdown")
		}
		t.connMu.Unlock()
	})
	return err
}

// devTLSCert returns a locally-generated self-signed certificate over a
// fresh random ed25519 key on every call, grounded on munonun-Web4's internal/network/quic.go
// devTLSCert: suitable only for local development, never for a real
// deployment (hence the NewQUICTransport guard requiring devTLS=true to be
// passed explicitly).
func devTLSCert() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"dtnex.local"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

var _ Adapter = (*QUICTransport)(nil)
