package graph

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"dtnex/internal/dtnproto"
	"dtnex/internal/metastore"
	"dtnex/internal/router"
)

type fakeListRouter struct {
	contacts []router.ContactRecord
}

func (f *fakeListRouter) LocalNodeID(ctx context.Context) (uint64, error) { return 1, nil }
func (f *fakeListRouter) Neighbors(ctx context.Context) ([]router.Plan, error) { return nil, nil }
func (f *fakeListRouter) InsertContact(ctx context.Context, region int, from, to time.Time, src, dst uint64, xmitRate, confidence float64) (router.InsertResult, error) {
	return router.Ok, nil
}
func (f *fakeListRouter) InsertRange(ctx context.Context, from, to time.Time, src, dst uint64, owlt float64) (router.InsertResult, error) {
	return router.Ok, nil
}
func (f *fakeListRouter) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeListRouter) ListContacts(ctx context.Context) ([]router.ContactRecord, error) {
	return f.contacts, nil
}
func (f *fakeListRouter) Close() error { return nil }

func TestWriteProducesNodesAndEdges(t *testing.T) {
	meta := metastore.New()
	meta.Put(dtnproto.Metadata{NodeID: 42, Name: "Gateway", Contact: "ops@x"})
	rtr := &fakeListRouter{contacts: []router.ContactRecord{{Src: 42, Dst: 43}}}

	var buf bytes.Buffer
	if err := Write(context.Background(), &buf, meta, rtr); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"ipn:42"`) {
		t.Fatalf("expected node ipn:42 in output:\n%s", out)
	}
	if !strings.Contains(out, `"ipn:42" -> "ipn:43"`) {
		t.Fatalf("expected edge 42->43 in output:\n%s", out)
	}
}
