// Package dtnerr defines the typed error kinds the protocol engine
// recognises and a small wrapper that attaches structured logging fields,
// in the shape of scionproto-scion's serrors package scaled down to the
// nine kinds named by the protocol's error handling design.
package dtnerr

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Sentinel kinds. Compare with errors.Is, never by string.
var (
	ErrMalformedMessage  = errors.New("malformed message")
	ErrExpired           = errors.New("message expired")
	ErrAuthFailed        = errors.New("mac verification failed")
	ErrDuplicate         = errors.New("duplicate origin/nonce")
	ErrSelfOrigin        = errors.New("envelope originated locally")
	ErrRouterTransient   = errors.New("router insertion failed, router otherwise reachable")
	ErrRouterGone        = errors.New("router unreachable or in an invalid state")
	ErrTransportSendFail = errors.New("transport send failed")
	ErrConfigInvalid     = errors.New("invalid configuration")
)

// wrapped carries a sentinel kind, an optional cause, and structured fields
// for logging. It implements Unwrap so errors.Is(err, ErrXxx) works through
// any number of wrapping layers.
type wrapped struct {
	kind   error
	cause  error
	fields []zap.Field
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return w.kind.Error()
	}
	return fmt.Sprintf("%s: %s", w.kind, w.cause)
}

func (w *wrapped) Unwrap() error { return w.kind }

func (w *wrapped) Cause() error { return w.cause }

// Fields returns the structured fields attached at Wrap time, suitable for
// passing straight to a zap.Logger call.
func (w *wrapped) Fields() []zap.Field { return w.fields }

// Wrap attaches cause and structured fields to one of the sentinel kinds
// above. cause may be nil.
func Wrap(kind error, cause error, fields ...zap.Field) error {
	return &wrapped{kind: kind, cause: cause, fields: fields}
}

// FieldsOf extracts the zap fields attached via Wrap, if any.
func FieldsOf(err error) []zap.Field {
	var w *wrapped
	if errors.As(err, &w) {
		return w.Fields()
	}
	return nil
}

// Silent reports whether a failure of this kind is the normal case for a
// gossip protocol and must never be logged above debug level (spec §7:
// MalformedMessage, Expired, AuthFailed, Duplicate, SelfOrigin).
func Silent(err error) bool {
	for _, k := range []error{
		ErrMalformedMessage, ErrExpired, ErrAuthFailed, ErrDuplicate, ErrSelfOrigin,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
