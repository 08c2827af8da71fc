// Package dtnproto implements DTNEX's wire format: the authenticated
// envelope and the two payload kinds it carries. The encoding is a
// purpose-built tag-length-value form (not CBOR), as permitted by the wire format
// description: a fixed-width header followed by a self-describing array of
// typed scalar elements for the payload, so that the legacy short-form
// metadata payloads (missing the leading node id) decode without a second
// schema. The length-prefixed framing style (BigEndian, explicit size
// bounds) follows munonun-Web4's own envelope framing conventions.
package dtnproto

import (
	"encoding/binary"
	"fmt"

	"dtnex/internal/dtnerr"
	"dtnex/internal/security"
)

// ProtocolVersion is the only version this codec accepts.
const ProtocolVersion uint8 = 2

// MaxEnvelopeSize bounds every encoded envelope, mac included.
const MaxEnvelopeSize = 128

// MaxNameLen and MaxContactLen bound the two metadata strings.
const (
	MaxNameLen    = 24
	MaxContactLen = 24
)

// MessageType distinguishes the two payload kinds carried by an envelope.
type MessageType uint8

const (
	TypeContact  MessageType = 0
	TypeMetadata MessageType = 1
)

func (t MessageType) String() string {
	switch t {
	case TypeContact:
		return "contact"
	case TypeMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Payload is the closed set of payload shapes an Envelope can carry. It is
// a tagged variant rather than an interface with dynamic dispatch: Envelope
// holds exactly one of Contact or Metadata, selected by Type.
type Payload struct {
	Contact  *Contact
	Metadata *Metadata
}

// Envelope is the nine-field authenticated message envelope.
type Envelope struct {
	Version    uint8
	Type       MessageType
	Timestamp  int64
	ExpireTime int64
	Origin     uint64
	From       uint64
	Nonce      [security.NonceSize]byte
	Payload    Payload
	Mac        [security.MACSize]byte
}

// Contact is the three-field contact advertisement payload.
type Contact struct {
	NodeA           uint64
	NodeB           uint64
	DurationMinutes uint16
}

// Metadata is the node descriptor payload. Latitude/Longitude are nil
// unless both are present (spec: presence is all-or-nothing).
type Metadata struct {
	NodeID             uint64
	Name               string
	Contact            string
	LatitudeMicroDeg   *int32
	LongitudeMicroDeg  *int32
}

// HasGPS reports whether both coordinates are present.
func (m *Metadata) HasGPS() bool {
	return m.LatitudeMicroDeg != nil && m.LongitudeMicroDeg != nil
}

// element tags for the payload's self-describing array encoding.
const (
	tagUint64 = 0x00
	tagUint16 = 0x01
	tagString = 0x02
	tagInt32  = 0x03
)

// writeUint64Elem appends a tagUint64 element.
func writeUint64Elem(buf []byte, v uint64) []byte {
	buf = append(buf, tagUint64)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func writeUint16Elem(buf []byte, v uint16) []byte {
	buf = append(buf, tagUint16)
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func writeStringElem(buf []byte, s string, maxLen int) ([]byte, error) {
	if len(s) > maxLen {
		return nil, fmt.Errorf("string %q exceeds max length %d", s, maxLen)
	}
	buf = append(buf, tagString, byte(len(s)))
	return append(buf, s...), nil
}

func writeInt32Elem(buf []byte, v int32) []byte {
	buf = append(buf, tagInt32)
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

// element is a decoded payload array entry prior to type-specific assembly.
type element struct {
	tag byte
	u64 uint64
	u16 uint16
	i32 int32
	str string
}

func readElements(buf []byte) ([]element, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty payload", dtnerr.ErrMalformedMessage)
	}
	count := int(buf[0])
	buf = buf[1:]
	elems := make([]element, 0, count)
	for i := 0; i < count; i++ {
		if len(buf) < 1 {
			return nil, fmt.Errorf("%w: truncated payload element", dtnerr.ErrMalformedMessage)
		}
		tag := buf[0]
		buf = buf[1:]
		var e element
		e.tag = tag
		switch tag {
		case tagUint64:
			if len(buf) < 8 {
				return nil, fmt.Errorf("%w: truncated uint64 element", dtnerr.ErrMalformedMessage)
			}
			e.u64 = binary.BigEndian.Uint64(buf[:8])
			buf = buf[8:]
		case tagUint16:
			if len(buf) < 2 {
				return nil, fmt.Errorf("%w: truncated uint16 element", dtnerr.ErrMalformedMessage)
			}
			e.u16 = binary.BigEndian.Uint16(buf[:2])
			buf = buf[2:]
		case tagInt32:
			if len(buf) < 4 {
				return nil, fmt.Errorf("%w: truncated int32 element", dtnerr.ErrMalformedMessage)
			}
			e.i32 = int32(binary.BigEndian.Uint32(buf[:4]))
			buf = buf[4:]
		case tagString:
			if len(buf) < 1 {
				return nil, fmt.Errorf("%w: truncated string length", dtnerr.ErrMalformedMessage)
			}
			n := int(buf[0])
			buf = buf[1:]
			if len(buf) < n {
				return nil, fmt.Errorf("%w: truncated string bytes", dtnerr.ErrMalformedMessage)
			}
			e.str = string(buf[:n])
			buf = buf[n:]
		default:
			return nil, fmt.Errorf("%w: unknown payload element tag %d", dtnerr.ErrMalformedMessage, tag)
		}
		elems = append(elems, e)
	}
	if len(buf) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after payload", dtnerr.ErrMalformedMessage)
	}
	return elems, nil
}
