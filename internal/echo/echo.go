// Package echo implements the optional bpecho-compatible responder: a
// dedicated service number that echoes every bundle it receives back to
// the sender, useful for reachability testing independent of the gossip
// protocol itself. It runs on its own transport listener and goroutine,
// and touches none of the engine's replay, metadata, or router state.
package echo

import (
	"context"

	"go.uber.org/zap"

	"dtnex/internal/transport"
)

// Responder echoes every bundle received on its service number back to
// the sender's node.
type Responder struct {
	trans   transport.Adapter
	service uint16
	ttl     uint16
	log     *zap.Logger
}

// New builds a Responder listening for bundles addressed to service on
// trans. ttl bounds how long an echo reply may wait in the router's queue.
func New(trans transport.Adapter, service uint16, ttl uint16, log *zap.Logger) *Responder {
	return &Responder{trans: trans, service: service, ttl: ttl, log: log}
}

// Run blocks, echoing bundles until ctx is done or the transport is
// closed. It shares the parent process's shutdown signal handling rather
// than installing its own: ctx cancellation propagates down from the
// supervisor.
func (r *Responder) Run(ctx context.Context) error {
	for {
		b, err := r.trans.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn("echo receive failed", zap.Error(err))
			continue
		}
		if b.LocalService != r.service {
			continue
		}
		r.reply(ctx, b)
	}
}

func (r *Responder) reply(ctx context.Context, b transport.Bundle) {
	if b.From == 0 {
		return
	}
	dst := transport.Endpoint{Node: b.From, Service: r.service}
	if err := r.trans.Send(ctx, dst, b.Payload, r.ttl); err != nil {
		r.log.Warn("echo reply failed", zap.Stringer("dst", dst), zap.Error(err))
	}
}
