package engine

import (
	"context"
	"time"

	"dtnex/internal/router"
)

// fakeRouter is a minimal in-memory router.Adapter used to assert the
// exact InsertContact/InsertRange calls a scenario produces, without
// pulling in the SQLite reference adapter's schema machinery.
type fakeRouter struct {
	localID   uint64
	neighbors []uint64

	contacts []contactCall
	ranges   []rangeCall

	gone error
}

type contactCall struct {
	From, To         time.Time
	Src, Dst         uint64
	XmitRate, Confidence float64
}

type rangeCall struct {
	From, To time.Time
	Src, Dst uint64
	Owlt     float64
}

func newFakeRouter(localID uint64, neighbors ...uint64) *fakeRouter {
	return &fakeRouter{localID: localID, neighbors: neighbors}
}

func (f *fakeRouter) LocalNodeID(ctx context.Context) (uint64, error) { return f.localID, nil }

func (f *fakeRouter) Neighbors(ctx context.Context) ([]router.Plan, error) {
	if f.gone != nil {
		return nil, f.gone
	}
	plans := make([]router.Plan, len(f.neighbors))
	for i, n := range f.neighbors {
		plans[i] = router.Plan{Neighbor: n, ObservedAt: time.Now()}
	}
	return plans, nil
}

func (f *fakeRouter) InsertContact(ctx context.Context, region int, fromTime, toTime time.Time, src, dst uint64, xmitRate, confidence float64) (router.InsertResult, error) {
	if f.gone != nil {
		return 0, f.gone
	}
	for _, c := range f.contacts {
		if c.Src == src && c.Dst == dst {
			if c.XmitRate == xmitRate && c.Confidence == confidence {
				return router.Duplicate, nil
			}
			return router.AlreadyExists, nil
		}
	}
	f.contacts = append(f.contacts, contactCall{fromTime, toTime, src, dst, xmitRate, confidence})
	return router.Ok, nil
}

func (f *fakeRouter) InsertRange(ctx context.Context, fromTime, toTime time.Time, src, dst uint64, owlt float64) (router.InsertResult, error) {
	if f.gone != nil {
		return 0, f.gone
	}
	for _, r := range f.ranges {
		if r.Src == src && r.Dst == dst {
			if r.Owlt == owlt {
				return router.Duplicate, nil
			}
			return router.AlreadyExists, nil
		}
	}
	f.ranges = append(f.ranges, rangeCall{fromTime, toTime, src, dst, owlt})
	return router.Ok, nil
}

func (f *fakeRouter) IsAvailable(ctx context.Context) bool { return f.gone == nil }

func (f *fakeRouter) ListContacts(ctx context.Context) ([]router.ContactRecord, error) {
	out := make([]router.ContactRecord, 0, len(f.contacts))
	for _, c := range f.contacts {
		out = append(out, router.ContactRecord{Src: c.Src, Dst: c.Dst, FromTime: c.From, ToTime: c.To})
	}
	return out, nil
}

func (f *fakeRouter) Close() error { return nil }

var _ router.Adapter = (*fakeRouter)(nil)
