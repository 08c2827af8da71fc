package dtnproto

import (
	"encoding/binary"
	"fmt"
	"time"

	"dtnex/internal/dtnerr"
	"dtnex/internal/security"
)

// Fields carries the five envelope fields common to both message kinds and
// known before the payload is built, used by the two Encode* entry points.
type Fields struct {
	Timestamp  time.Time
	ExpireTime time.Time
	Origin     uint64
	From       uint64
	Nonce      [security.NonceSize]byte
}

// LegacyMetadataPayloads gates acceptance, at decode time, of the two
// legacy metadata payload shapes (2- and 4-element, lacking the leading
// node id). New networks should leave this false.
type LegacyMetadataPayloads bool

func writeHeader(buf []byte, version uint8, typ MessageType, f Fields) []byte {
	buf = append(buf, version, byte(typ))
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(f.Timestamp.Unix()))
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], uint64(f.ExpireTime.Unix()))
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], f.Origin)
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], f.From)
	buf = append(buf, tmp[:]...)
	return append(buf, f.Nonce[:]...)
}

const headerSize = 1 + 1 + 8 + 8 + 8 + 8 + security.NonceSize

// EncodeContact serializes a contact advertisement envelope, including the
// MAC computed under auth. Returns dtnerr.ErrMalformedMessage wrapped if
// the result would exceed MaxEnvelopeSize.
func EncodeContact(f Fields, c Contact, auth *security.Authenticator) ([]byte, error) {
	buf := make([]byte, 0, MaxEnvelopeSize)
	buf = writeHeader(buf, ProtocolVersion, TypeContact, f)
	buf = append(buf, 3) // element count
	buf = writeUint64Elem(buf, c.NodeA)
	buf = writeUint64Elem(buf, c.NodeB)
	buf = writeUint16Elem(buf, c.DurationMinutes)
	return sealAndBound(buf, auth)
}

// EncodeMetadata serializes a metadata descriptor envelope. The node id is
// always emitted explicitly (the canonical 3- or 5-element form); legacy
// short forms are only ever produced by other implementations, never by
// this encoder.
func EncodeMetadata(f Fields, m Metadata, auth *security.Authenticator) ([]byte, error) {
	if len(m.Name) > MaxNameLen {
		return nil, fmt.Errorf("%w: metadata name exceeds %d bytes", dtnerr.ErrMalformedMessage, MaxNameLen)
	}
	if len(m.Contact) > MaxContactLen {
		return nil, fmt.Errorf("%w: metadata contact exceeds %d bytes", dtnerr.ErrMalformedMessage, MaxContactLen)
	}
	if (m.LatitudeMicroDeg == nil) != (m.LongitudeMicroDeg == nil) {
		return nil, fmt.Errorf("%w: metadata GPS fields must be both present or both absent", dtnerr.ErrMalformedMessage)
	}

	buf := make([]byte, 0, MaxEnvelopeSize)
	buf = writeHeader(buf, ProtocolVersion, TypeMetadata, f)

	count := byte(3)
	if m.HasGPS() {
		count = 5
	}
	buf = append(buf, count)
	buf = writeUint64Elem(buf, m.NodeID)
	var err error
	buf, err = writeStringElem(buf, m.Name, MaxNameLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dtnerr.ErrMalformedMessage, err)
	}
	buf, err = writeStringElem(buf, m.Contact, MaxContactLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dtnerr.ErrMalformedMessage, err)
	}
	if m.HasGPS() {
		buf = writeInt32Elem(buf, *m.LatitudeMicroDeg)
		buf = writeInt32Elem(buf, *m.LongitudeMicroDeg)
	}
	return sealAndBound(buf, auth)
}

func sealAndBound(buf []byte, auth *security.Authenticator) ([]byte, error) {
	mac := auth.Compute(buf)
	buf = append(buf, mac[:]...)
	if len(buf) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: encoded envelope is %d bytes, exceeds max %d",
			dtnerr.ErrMalformedMessage, len(buf), MaxEnvelopeSize)
	}
	return buf, nil
}

// Decode parses bytes into an Envelope without verifying the MAC; callers
// must call VerifyMAC on the raw bytes separately
// so that the replay/expiry/self-origin checks in the spec's inbound
// handler order correctly relative to authentication. legacy controls
// whether 2-/4-element metadata payloads (missing the leading node id) are
// accepted; decoded legacy payloads substitute origin for the missing id.
func Decode(b []byte, legacy LegacyMetadataPayloads) (*Envelope, error) {
	if len(b) < headerSize+1+security.MACSize {
		return nil, fmt.Errorf("%w: envelope too short (%d bytes)", dtnerr.ErrMalformedMessage, len(b))
	}
	if len(b) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: envelope too long (%d bytes)", dtnerr.ErrMalformedMessage, len(b))
	}

	version := b[0]
	if version != ProtocolVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", dtnerr.ErrMalformedMessage, version, ProtocolVersion)
	}
	rawType := b[1]
	if rawType != byte(TypeContact) && rawType != byte(TypeMetadata) {
		return nil, fmt.Errorf("%w: unknown type %d", dtnerr.ErrMalformedMessage, rawType)
	}
	typ := MessageType(rawType)

	env := &Envelope{Version: version, Type: typ}
	env.Timestamp = int64(binary.BigEndian.Uint64(b[2:10]))
	env.ExpireTime = int64(binary.BigEndian.Uint64(b[10:18]))
	env.Origin = binary.BigEndian.Uint64(b[18:26])
	env.From = binary.BigEndian.Uint64(b[26:34])
	copy(env.Nonce[:], b[34:34+security.NonceSize])

	payloadEnd := len(b) - security.MACSize
	payloadBytes := b[34+security.NonceSize : payloadEnd]
	copy(env.Mac[:], b[payloadEnd:])

	elems, err := readElements(payloadBytes)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeContact:
		c, err := decodeContact(elems)
		if err != nil {
			return nil, err
		}
		env.Payload.Contact = c
	case TypeMetadata:
		m, err := decodeMetadata(elems, env.Origin, legacy)
		if err != nil {
			return nil, err
		}
		env.Payload.Metadata = m
	}
	return env, nil
}

// VerifyMAC checks the MAC embedded in raw envelope bytes against auth,
// operating on the bytes as received (rather than on a re-encoded form),
// which matters for legacy metadata payloads where re-encoding would
// change the byte sequence the MAC was computed over.
func VerifyMAC(b []byte, auth *security.Authenticator) bool {
	if len(b) < security.MACSize {
		return false
	}
	data := b[:len(b)-security.MACSize]
	var mac [security.MACSize]byte
	copy(mac[:], b[len(b)-security.MACSize:])
	return auth.Verify(data, mac)
}

func decodeContact(elems []element) (*Contact, error) {
	if len(elems) != 3 || elems[0].tag != tagUint64 || elems[1].tag != tagUint64 || elems[2].tag != tagUint16 {
		return nil, fmt.Errorf("%w: malformed contact payload shape", dtnerr.ErrMalformedMessage)
	}
	return &Contact{NodeA: elems[0].u64, NodeB: elems[1].u64, DurationMinutes: elems[2].u16}, nil
}

func decodeMetadata(elems []element, origin uint64, legacy LegacyMetadataPayloads) (*Metadata, error) {
	hasNodeID := len(elems) > 0 && elems[0].tag == tagUint64

	var m Metadata
	rest := elems
	if hasNodeID {
		if len(elems) != 3 && len(elems) != 5 {
			return nil, fmt.Errorf("%w: malformed metadata payload shape", dtnerr.ErrMalformedMessage)
		}
		m.NodeID = elems[0].u64
		rest = elems[1:]
	} else {
		if !bool(legacy) {
			return nil, fmt.Errorf("%w: legacy metadata payload rejected (compatibility flag disabled)", dtnerr.ErrMalformedMessage)
		}
		if len(elems) != 2 && len(elems) != 4 {
			return nil, fmt.Errorf("%w: malformed legacy metadata payload shape", dtnerr.ErrMalformedMessage)
		}
		m.NodeID = origin
		rest = elems
	}

	if len(rest) < 2 || rest[0].tag != tagString || rest[1].tag != tagString {
		return nil, fmt.Errorf("%w: malformed metadata name/contact fields", dtnerr.ErrMalformedMessage)
	}
	m.Name = rest[0].str
	m.Contact = rest[1].str

	if len(rest) == 4 {
		if rest[2].tag != tagInt32 || rest[3].tag != tagInt32 {
			return nil, fmt.Errorf("%w: malformed metadata GPS fields", dtnerr.ErrMalformedMessage)
		}
		lat, lon := rest[2].i32, rest[3].i32
		m.LatitudeMicroDeg, m.LongitudeMicroDeg = &lat, &lon
	}
	return &m, nil
}
