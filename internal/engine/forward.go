package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dtnex/internal/dtnproto"
	"dtnex/internal/transport"
)

// Forward re-emits env to every neighbor other than its origin, its
// immediate sender, and the local node. The nonce is never regenerated: it
// is read straight off env, never minted by this function, which is what
// keeps (origin, nonce) a stable identity for a bundle across every hop it
// takes.
func (e *Engine) Forward(ctx context.Context, env *dtnproto.Envelope) {
	plans, err := e.nbr.Snapshot(ctx)
	if err != nil {
		e.classifyRouterErr(err)
		return
	}

	fields := dtnproto.Fields{
		Timestamp:  time.Unix(env.Timestamp, 0),
		ExpireTime: time.Unix(env.ExpireTime, 0),
		Origin:     env.Origin,
		From:       e.localID,
		Nonce:      env.Nonce,
	}

	for _, p := range plans {
		n := p.Neighbor
		if n == env.Origin || n == env.From || n == e.localID {
			continue
		}

		var buf []byte
		var encErr error
		switch env.Type {
		case dtnproto.TypeContact:
			buf, encErr = dtnproto.EncodeContact(fields, *env.Payload.Contact, e.auth)
		case dtnproto.TypeMetadata:
			buf, encErr = dtnproto.EncodeMetadata(fields, *env.Payload.Metadata, e.auth)
		}
		if encErr != nil {
			e.log.Warn("re-encode for forward failed", zap.Error(encErr))
			continue
		}

		endpoint := transport.Endpoint{Node: n, Service: e.cfg.ServiceNumber}
		ttl := uint16(e.cfg.BundleTTL / time.Second)
		if err := e.trans.Send(ctx, endpoint, buf, ttl); err != nil {
			e.mx.TransportSendFailures.Inc()
			e.log.Warn("forward send failed", zap.Stringer("dst", endpoint), zap.Error(err))
			continue
		}
		e.mx.Forwarded.Inc()
	}
}
