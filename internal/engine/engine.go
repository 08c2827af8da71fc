// Package engine implements the protocol engine: the periodic broadcaster,
// the inbound handler, and the forwarder, orchestrating the codec, replay
// cache, metadata store, router adapter, and transport adapter. The Engine
// value is the single mutable handle carrying all of that state, in place
// of module-level singletons; dropping it is shutdown, rebuilding it is
// restart.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dtnex/internal/config"
	"dtnex/internal/dtnproto"
	"dtnex/internal/metastore"
	"dtnex/internal/metrics"
	"dtnex/internal/periodic"
	"dtnex/internal/replay"
	"dtnex/internal/router"
	"dtnex/internal/security"
	"dtnex/internal/transport"
)

// neighborWatchInterval is the cadence at which Run's neighbor-change
// watcher forces a fresh neighbor fetch, matching the neighborCache's own
// TTL so the watcher never fetches more often than Snapshot callers would
// anyway.
const neighborWatchInterval = 20 * time.Second

// RouterGoneFunc is invoked each time a router call reports the router as
// gone, so it may be called more than once per Run. The supervisor (internal/supervisor)
// passes a callback that tears down and rebuilds the Engine; the engine
// itself does not know how to restart.
type RouterGoneFunc func(cause error)

// Engine groups every piece of state the protocol engine touches: one
// value, threaded through the timer task and the inbound task, torn down
// as a unit on shutdown.
type Engine struct {
	cfg    config.Config
	auth   *security.Authenticator
	router router.Adapter
	trans  transport.Adapter
	replay *replay.Cache
	meta   *metastore.Store
	nbr    *neighborCache
	mx     *metrics.Metrics
	log    *zap.Logger

	localID uint64

	onRouterGone RouterGoneFunc

	runner *periodic.Runner
}

// New constructs an Engine. localID is read from rtr at build time via
// LocalNodeID so the engine never needs a router call on its hot paths.
func New(ctx context.Context, cfg config.Config, rtr router.Adapter, trans transport.Adapter, mx *metrics.Metrics, log *zap.Logger, onRouterGone RouterGoneFunc) (*Engine, error) {
	localID, err := rtr.LocalNodeID(ctx)
	if err != nil {
		return nil, err
	}
	cache, err := replay.New(cfg.ReplayCacheSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:          cfg,
		auth:         security.NewAuthenticator(cfg.SharedKey),
		router:       rtr,
		trans:        trans,
		replay:       cache,
		meta:         metastore.New(),
		nbr:          newNeighborCache(rtr, 20*time.Second),
		mx:           mx,
		log:          log,
		localID:      localID,
		onRouterGone: onRouterGone,
	}
	if cfg.LocalMetadataName != "" || cfg.LocalMetadataContact != "" {
		e.meta.Put(e.localMetadataRecord())
	}
	return e, nil
}

func (e *Engine) localMetadataRecord() dtnproto.Metadata {
	m := dtnproto.Metadata{NodeID: e.localID, Name: e.cfg.LocalMetadataName, Contact: e.cfg.LocalMetadataContact}
	if e.cfg.LocalGPSLat != nil && e.cfg.LocalGPSLon != nil {
		lat := int32(*e.cfg.LocalGPSLat * 1e6)
		lon := int32(*e.cfg.LocalGPSLon * 1e6)
		m.LatitudeMicroDeg, m.LongitudeMicroDeg = &lat, &lon
	}
	return m
}

// Run starts the timer task and the inbound task and blocks until ctx is
// cancelled or either task returns an unrecoverable error. The lifecycle
// supervision one layer up lives in internal/supervisor.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	e.runner = periodic.Start(gctx, periodic.TaskFunc(e.originateTask), periodic.NewTicker(e.cfg.UpdateInterval), e.cfg.UpdateInterval)
	g.Go(func() error {
		<-gctx.Done()
		e.runner.Kill()
		return nil
	})

	g.Go(func() error {
		return e.inboundLoop(gctx)
	})

	g.Go(func() error {
		e.watchNeighbors(gctx)
		return nil
	})

	e.runner.TriggerRun()

	return g.Wait()
}

// watchNeighbors polls the neighbor set on neighborWatchInterval and
// triggers an out-of-band originate broadcast (trigger condition (c), a
// neighbor set change) whenever ForceRefresh reports the membership
// changed since the last poll.
func (e *Engine) watchNeighbors(ctx context.Context) {
	ticker := time.NewTicker(neighborWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := e.nbr.ForceRefresh(ctx)
			if err != nil {
				e.log.Warn("neighbor watch refresh failed", zap.Error(err))
				e.classifyRouterErr(err)
				continue
			}
			if changed {
				e.log.Info("neighbor set changed, triggering broadcast")
				e.TriggerBroadcast()
			}
		}
	}
}

// TriggerBroadcast requests an out-of-band originate broadcast outside the
// normal schedule, used when the neighbor-change watcher observes a
// change in the neighbor set.
func (e *Engine) TriggerBroadcast() {
	if e.runner != nil {
		e.runner.TriggerRun()
	}
}

func (e *Engine) originateTask(ctx context.Context) {
	if err := e.OriginateBroadcast(ctx); err != nil {
		e.log.Warn("originate broadcast failed", zap.Error(err))
	}
}

func (e *Engine) inboundLoop(ctx context.Context) error {
	for {
		b, err := e.trans.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.log.Warn("transport receive failed", zap.Error(err))
			continue
		}
		e.HandleInbound(ctx, b.Payload)
	}
}

func (e *Engine) reportRouterGone(cause error) {
	e.mx.RouterGoneEvents.Inc()
	if e.onRouterGone != nil {
		e.onRouterGone(cause)
	}
}
