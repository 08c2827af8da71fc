// Package supervisor implements the Disconnected/Connecting/Connected/
// ShuttingDown process lifecycle: it owns bringing up the router and
// transport adapters, starting the protocol engine, reacting to a gone
// router by tearing down and rebuilding the engine, and reacting to
// termination signals by shutting down cleanly. The signal-derived
// cancellable context follows scionproto-scion's go/pkg/app.WithSignal;
// the connect/retry loop follows munonun-Web4's connection-manager
// reconnect-with-backoff shape, adapted from peer dialing to router
// liveness polling.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dtnex/internal/config"
	"dtnex/internal/engine"
	"dtnex/internal/metrics"
	"dtnex/internal/router"
	"dtnex/internal/transport"
)

// State is one of the four process lifecycle states.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// retryCadence picks the retry interval depending on whether the router
// adapter reports any underlying router process as present: a fast retry
// while a router process exists but isn't ready yet, a slow retry once it
// looks like nothing is even listening.
func retryCadence(routerProcessesExist bool) time.Duration {
	if routerProcessesExist {
		return 10 * time.Second
	}
	return 300 * time.Second
}

// Builder constructs the router and transport adapters a Supervisor will
// hand to a fresh Engine. It is called once at startup and again on every
// gone-router-triggered restart, so that adapters are always rebuilt from
// scratch rather than reused across a restart — equivalent to a process
// relaunch without actually exiting the process.
type Builder func(ctx context.Context, cfg config.Config) (router.Adapter, transport.Adapter, error)

// Supervisor drives the lifecycle state machine around one Engine value at
// a time: shutdown drops that value, restart reconstructs it.
type Supervisor struct {
	cfg     config.Config
	build   Builder
	mx      *metrics.Metrics
	log     *zap.Logger

	mu    sync.Mutex
	state State
}

// New builds a Supervisor. build is invoked to (re)construct the router
// and transport adapters on every connect attempt.
func New(cfg config.Config, build Builder, mx *metrics.Metrics, log *zap.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, build: build, mx: mx, log: log, state: Disconnected}
}

// State reports the current lifecycle state, for diagnostics.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.log.Info("supervisor state transition", zap.Stringer("state", st))
}

// Run blocks until ctx is cancelled or a termination signal arrives,
// connecting (and reconnecting, on a gone router) the engine as needed. It
// installs its own signal handling for SIGINT, SIGTERM, and SIGTSTP, all
// three mapped to shutdown rather than suspend: the router cannot safely
// tolerate a suspended client holding its resources.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGTSTP)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			s.setState(ShuttingDown)
			return nil
		default:
		}

		rtr, trans, err := s.connect(ctx)
		if err != nil {
			// ctx was cancelled while retrying.
			s.setState(ShuttingDown)
			return nil
		}

		restart := make(chan error, 1)
		eng, err := engine.New(ctx, s.cfg, rtr, trans, s.mx, s.log, func(cause error) {
			select {
			case restart <- cause:
			default:
			}
		})
		if err != nil {
			s.log.Error("engine construction failed", zap.Error(err))
			_ = rtr.Close()
			_ = trans.Close()
			s.setState(Disconnected)
			continue
		}

		s.setState(Connected)
		runCtx, runCancel := context.WithCancel(ctx)
		runErr := make(chan error, 1)
		go func() { runErr <- eng.Run(runCtx) }()

		select {
		case <-ctx.Done():
			runCancel()
			<-runErr
			_ = rtr.Close()
			_ = trans.Close()
			s.setState(ShuttingDown)
			return nil
		case cause := <-restart:
			s.log.Warn("router gone, restarting engine", zap.Error(cause))
			runCancel()
			<-runErr
			_ = rtr.Close()
			_ = trans.Close()
			s.setState(Disconnected)
			continue
		case err := <-runErr:
			runCancel()
			_ = rtr.Close()
			_ = trans.Close()
			if err != nil {
				s.log.Error("engine run exited with error", zap.Error(err))
			}
			s.setState(Disconnected)
			continue
		}
	}
}

// connect repeatedly calls build until it succeeds or ctx is cancelled,
// backing off per retryCadence between attempts.
func (s *Supervisor) connect(ctx context.Context) (router.Adapter, transport.Adapter, error) {
	s.setState(Connecting)
	for {
		rtr, trans, err := s.build(ctx, s.cfg)
		if err == nil {
			return rtr, trans, nil
		}
		s.log.Warn("connect attempt failed", zap.Error(err))

		routerProcessesExist := rtr != nil && rtr.IsAvailable(ctx)
		wait := retryCadence(routerProcessesExist)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}
