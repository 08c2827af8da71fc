package supervisor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"dtnex/internal/config"
	"dtnex/internal/metrics"
	"dtnex/internal/router"
	"dtnex/internal/transport"
)

type stubRouter struct {
	localID   uint64
	available bool
}

func (r *stubRouter) LocalNodeID(ctx context.Context) (uint64, error) { return r.localID, nil }
func (r *stubRouter) Neighbors(ctx context.Context) ([]router.Plan, error) { return nil, nil }
func (r *stubRouter) InsertContact(ctx context.Context, region int, from, to time.Time, src, dst uint64, xmitRate, confidence float64) (router.InsertResult, error) {
	return router.Ok, nil
}
func (r *stubRouter) InsertRange(ctx context.Context, from, to time.Time, src, dst uint64, owlt float64) (router.InsertResult, error) {
	return router.Ok, nil
}
func (r *stubRouter) IsAvailable(ctx context.Context) bool                          { return r.available }
func (r *stubRouter) ListContacts(ctx context.Context) ([]router.ContactRecord, error) { return nil, nil }
func (r *stubRouter) Close() error                                                   { return nil }

var _ router.Adapter = (*stubRouter)(nil)

func TestRetryCadencePicksShortIntervalWhenRouterProcessesExist(t *testing.T) {
	if got := retryCadence(true); got != 10*time.Second {
		t.Fatalf("want 10s, got %s", got)
	}
	if got := retryCadence(false); got != 300*time.Second {
		t.Fatalf("want 300s, got %s", got)
	}
}

func TestRunShutsDownCleanlyOnContextCancel(t *testing.T) {
	net := transport.NewNetwork()
	build := func(ctx context.Context, cfg config.Config) (router.Adapter, transport.Adapter, error) {
		return &stubRouter{localID: 1, available: true}, net.NewAdapter(1), nil
	}
	sup := New(config.Defaults(), build, metrics.New(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
	if sup.State() != ShuttingDown {
		t.Fatalf("want ShuttingDown, got %s", sup.State())
	}
}

func TestConnectAbortsOnContextCancelDuringBackoff(t *testing.T) {
	build := func(ctx context.Context, cfg config.Config) (router.Adapter, transport.Adapter, error) {
		return &stubRouter{localID: 0, available: false}, nil, context.DeadlineExceeded
	}
	sup := New(config.Defaults(), build, metrics.New(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err := sup.connect(ctx)
	if err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if sup.State() != Connecting {
		t.Fatalf("want Connecting, got %s", sup.State())
	}
}
