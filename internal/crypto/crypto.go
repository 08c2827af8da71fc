// Package crypto provides the AEAD and hashing primitives the transport
// layer uses to seal DTNEX frames (internal/transport/quic.go), trimmed
// from munonun-Web4's internal/crypto/crypto.go down to the
// XChaCha20-Poly1305 + SHA3-256 suite: DTNEX has no node-identity key
// pairs, wallet signatures, or X25519 handshake, so the RSA-PSS signing
// API and the ephemeral-ECDH helpers that suite also carried were not
// grounded on anything this repo needs and were dropped (see DESIGN.md).
package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"
)

const (
	// XKeySize and XNonceSize are the XChaCha20-Poly1305 key and nonce
	// sizes; kept as named constants rather than bare chacha20poly1305
	// references so callers outside this package never need that import.
	XKeySize   = chacha20poly1305.KeySize
	XNonceSize = chacha20poly1305.NonceSizeX
)

// SHA3_256 returns the SHA3-256 digest of msg.
func SHA3_256(msg []byte) []byte {
	sum := sha3.Sum256(msg)
	return sum[:]
}

// KDF derives a 32-byte key from a domain-separation label and arbitrary
// key material, by hashing the label concatenated with every part.
func KDF(label string, parts ...[]byte) []byte {
	buf := make([]byte, 0, len(label))
	buf = append(buf, []byte(label)...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return SHA3_256(buf)
}

// XSeal generates a random 24-byte nonce and seals plaintext under key32
// with aad as associated data.
func XSeal(key32, plaintext, aad []byte) (nonce24 []byte, ciphertext []byte, err error) {
	if len(key32) != XKeySize {
		return nil, nil, fmt.Errorf("crypto: bad key size: need %d", XKeySize)
	}
	aead, err := chacha20poly1305.NewX(key32)
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, XNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, aad)
	return nonce, ct, nil
}

// XSealWithNonce seals plaintext under an explicit caller-supplied nonce.
// Callers must never reuse a (key, nonce) pair.
func XSealWithNonce(key32, nonce24, plaintext, aad []byte) ([]byte, error) {
	if len(key32) != XKeySize {
		return nil, fmt.Errorf("crypto: bad key size: need %d", XKeySize)
	}
	if len(nonce24) != XNonceSize {
		return nil, fmt.Errorf("crypto: bad nonce size: need %d", XNonceSize)
	}
	aead, err := chacha20poly1305.NewX(key32)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce24, plaintext, aad), nil
}

// XOpen verifies and decrypts a ciphertext sealed by XSeal/XSealWithNonce.
func XOpen(key32, nonce24, ciphertext, aad []byte) ([]byte, error) {
	if len(key32) != XKeySize {
		return nil, fmt.Errorf("crypto: bad key size: need %d", XKeySize)
	}
	if len(nonce24) != XNonceSize {
		return nil, fmt.Errorf("crypto: bad nonce size: need %d", XNonceSize)
	}
	aead, err := chacha20poly1305.NewX(key32)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce24, ciphertext, aad)
}
