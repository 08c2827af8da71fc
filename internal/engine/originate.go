package engine

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"dtnex/internal/dtnproto"
	"dtnex/internal/graph"
	"dtnex/internal/security"
	"dtnex/internal/transport"
)

// OriginateBroadcast builds and sends the pairwise contact fan-out and, if
// enabled, the local metadata fan-out. It is triggered by the timer task
// on its configured interval and out-of-band via TriggerBroadcast.
func (e *Engine) OriginateBroadcast(ctx context.Context) error {
	plans, err := e.nbr.Snapshot(ctx)
	if err != nil {
		e.classifyRouterErr(err)
		return err
	}
	e.mx.NeighborCount.Set(float64(len(plans)))

	now := time.Now()
	expire := now.Add(e.cfg.ContactLifetime).Add(e.cfg.ContactTimeTolerance)
	// Truncate rather than round, so a contact is never advertised as
	// lasting longer than it actually will.
	durationMinutes := uint16(e.cfg.ContactLifetime / time.Minute)

	for _, i := range plans {
		for _, j := range plans {
			if j.Neighbor == e.localID {
				continue
			}
			nonce, err := security.NewNonce()
			if err != nil {
				return err
			}
			fields := dtnproto.Fields{Timestamp: now, ExpireTime: expire, Origin: e.localID, From: e.localID, Nonce: nonce}
			contact := dtnproto.Contact{NodeA: e.localID, NodeB: i.Neighbor, DurationMinutes: durationMinutes}
			buf, err := dtnproto.EncodeContact(fields, contact, e.auth)
			if err != nil {
				e.log.Warn("encode contact failed", zap.Error(err))
				continue
			}
			e.sendOne(ctx, j.Neighbor, buf)
		}
	}

	if !e.cfg.DisableMetadataExchange {
		if rec, ok := e.meta.Get(e.localID); ok {
			for _, j := range plans {
				if j.Neighbor == e.localID {
					continue
				}
				nonce, err := security.NewNonce()
				if err != nil {
					return err
				}
				fields := dtnproto.Fields{Timestamp: now, ExpireTime: expire, Origin: e.localID, From: e.localID, Nonce: nonce}
				buf, err := dtnproto.EncodeMetadata(fields, rec, e.auth)
				if err != nil {
					e.log.Warn("encode metadata failed", zap.Error(err))
					continue
				}
				e.sendOne(ctx, j.Neighbor, buf)
			}
		}
	}

	if e.cfg.GraphEnabled {
		e.writeGraph(ctx)
	}

	return nil
}

// writeGraph renders the current topology snapshot to cfg.GraphFile. It is
// fire-and-forget: a render failure is logged and does not fail the
// broadcast that triggered it.
func (e *Engine) writeGraph(ctx context.Context) {
	f, err := os.Create(e.cfg.GraphFile)
	if err != nil {
		e.log.Warn("graph render: create output file failed", zap.String("path", e.cfg.GraphFile), zap.Error(err))
		return
	}
	defer f.Close()
	if err := graph.Write(ctx, f, e.meta, e.router); err != nil {
		e.log.Warn("graph render failed", zap.Error(err))
	}
}

func (e *Engine) sendOne(ctx context.Context, dst uint64, buf []byte) {
	endpoint := transport.Endpoint{Node: dst, Service: e.cfg.ServiceNumber}
	ttl := uint16(e.cfg.BundleTTL / time.Second)
	if err := e.trans.Send(ctx, endpoint, buf, ttl); err != nil {
		e.mx.TransportSendFailures.Inc()
		e.log.Warn("transport send failed", zap.Stringer("dst", endpoint), zap.Error(err))
		return
	}
	e.mx.Sent.Inc()
}
