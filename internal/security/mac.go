// Package security implements DTNEX's keyed-MAC and nonce primitives.
//
// The pattern (derive-once, Generate/Verify, constant-time compare) follows
// dep2p-go-dep2p's internal/core/realm/psk.go PSKAuthenticator; the MAC
// algorithm itself (HMAC-SHA-256 truncated to 8 bytes) is fixed by the wire
// format and implemented directly against the standard library, since no
// pack dependency offers a drop-in truncated-HMAC primitive.
package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
)

// MACSize is the number of bytes of the HMAC-SHA-256 output that are
// transmitted and verified.
const MACSize = 8

// NonceSize is the number of random bytes an originator picks per envelope.
const NonceSize = 3

// Authenticator computes and verifies truncated HMAC-SHA-256 MACs under a
// single shared secret. It is safe for concurrent use; it holds no mutable
// state beyond the immutable key bytes.
type Authenticator struct {
	key []byte
}

// NewAuthenticator builds an Authenticator keyed by the given shared secret.
// An empty secret is accepted; the default shared key is the string "open",
// never empty in practice, but the type does not enforce that.
func NewAuthenticator(sharedSecret string) *Authenticator {
	return &Authenticator{key: []byte(sharedSecret)}
}

// Compute returns the 8-byte truncated HMAC-SHA-256 of data under the
// configured shared secret. data must be the serialized envelope with the
// mac field omitted.
func (a *Authenticator) Compute(data []byte) [MACSize]byte {
	h := hmac.New(sha256.New, a.key)
	h.Write(data)
	sum := h.Sum(nil)
	var out [MACSize]byte
	copy(out[:], sum[:MACSize])
	return out
}

// Verify recomputes the MAC over data and compares it against mac in
// constant time.
func (a *Authenticator) Verify(data []byte, mac [MACSize]byte) bool {
	got := a.Compute(data)
	return hmac.Equal(got[:], mac[:])
}

// NewNonce draws NonceSize cryptographically random bytes. Called only by
// an originator; a forwarder must never call this — it preserves the
// nonce it received (see internal/engine's Engine.Forward).
func NewNonce() ([NonceSize]byte, error) {
	var n [NonceSize]byte
	_, err := rand.Read(n[:])
	return n, err
}
