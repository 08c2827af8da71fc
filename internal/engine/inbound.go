package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dtnex/internal/dtnerr"
	"dtnex/internal/dtnproto"
	"dtnex/internal/router"
)

// region is the fixed region id the reference router deployment uses for
// every installed contact.
const region = 1

// xmitRate, confidence, and owlt are the fixed parameters installed with
// every contact.
const (
	xmitRate   = 100000.0
	confidence = 1.0
	owlt       = 1.0
)

// HandleInbound runs one received envelope through decode, expiry, MAC,
// replay, and self-origin checks, dispatches it to the router adapter or
// metadata store, and forwards it onward.
func (e *Engine) HandleInbound(ctx context.Context, raw []byte) {
	env, err := dtnproto.Decode(raw, dtnproto.LegacyMetadataPayloads(e.cfg.AcceptLegacyMetadata))
	if err != nil {
		e.mx.DroppedMalformed.Inc()
		e.log.Debug("dropping malformed envelope", zap.Error(err))
		return
	}

	if time.Now().Unix() > env.ExpireTime {
		e.mx.DroppedExpired.Inc()
		e.log.Debug("dropping expired envelope", zap.Uint64("origin", env.Origin))
		return
	}

	if !dtnproto.VerifyMAC(raw, e.auth) {
		e.mx.DroppedAuthFailed.Inc()
		e.log.Debug("dropping envelope with bad mac", zap.Uint64("origin", env.Origin))
		return
	}

	if !e.replay.InsertIfNew(env.Origin, env.Nonce) {
		e.mx.DroppedDuplicate.Inc()
		e.log.Debug("dropping replayed envelope", zap.Uint64("origin", env.Origin))
		return
	}
	e.mx.ReplayCacheSize.Set(float64(e.replay.Len()))

	if env.Origin == e.localID {
		e.mx.DroppedSelfOrigin.Inc()
		return
	}

	e.mx.Received.Inc()

	switch env.Type {
	case dtnproto.TypeContact:
		e.installContact(ctx, env.Timestamp, env.Payload.Contact)
	case dtnproto.TypeMetadata:
		e.meta.Put(*env.Payload.Metadata)
		e.mx.MetadataStoreSize.Set(float64(e.meta.Len()))
	}

	e.Forward(ctx, env)
}

func (e *Engine) installContact(ctx context.Context, timestamp int64, c *dtnproto.Contact) {
	from := time.Unix(timestamp, 0)
	to := from.Add(time.Duration(c.DurationMinutes) * time.Minute)

	e.insertContactPair(ctx, from, to, c.NodeA, c.NodeB)
	e.insertContactPair(ctx, from, to, c.NodeB, c.NodeA)
	e.insertRangePair(ctx, from, to, c.NodeA, c.NodeB)
	e.insertRangePair(ctx, from, to, c.NodeB, c.NodeA)
}

func (e *Engine) insertContactPair(ctx context.Context, from, to time.Time, src, dst uint64) {
	res, err := e.router.InsertContact(ctx, region, from, to, src, dst, xmitRate, confidence)
	e.handleRouterResult(res, err, "insert_contact", src, dst)
}

func (e *Engine) insertRangePair(ctx context.Context, from, to time.Time, src, dst uint64) {
	res, err := e.router.InsertRange(ctx, from, to, src, dst, owlt)
	e.handleRouterResult(res, err, "insert_range", src, dst)
}

// handleRouterResult splits router failures into transient and gone:
// AlreadyExists/Duplicate are success; a hard error that still leaves the
// router reachable is logged and processing continues (a transient
// failure, not escalated); a gone router escalates.
func (e *Engine) handleRouterResult(res router.InsertResult, err error, op string, src, dst uint64) {
	if err == nil {
		if res != router.Ok {
			e.log.Debug("router insert idempotent", zap.String("op", op), zap.Uint64("src", src), zap.Uint64("dst", dst), zap.Stringer("result", res))
		}
		return
	}
	if errors.Is(err, dtnerr.ErrRouterGone) {
		e.reportRouterGone(err)
		return
	}
	e.mx.RouterTransientErrors.Inc()
	e.log.Warn("router insertion failed, continuing", zap.String("op", op), zap.Uint64("src", src), zap.Uint64("dst", dst), zap.Error(err))
}

func (e *Engine) classifyRouterErr(err error) {
	if errors.Is(err, dtnerr.ErrRouterGone) {
		e.reportRouterGone(err)
	}
}
