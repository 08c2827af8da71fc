package router

import (
	"context"
	"testing"
	"time"
)

func openTestAdapter(t *testing.T, local uint64, neighbors []uint64) *SQLiteAdapter {
	t.Helper()
	a, err := OpenSQLiteAdapter(context.Background(), ":memory:", local, neighbors)
	if err != nil {
		t.Fatalf("OpenSQLiteAdapter: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNeighborsExcludesLocalNode(t *testing.T) {
	a := openTestAdapter(t, 100, []uint64{100, 101, 102})
	plans, err := a.Neighbors(context.Background())
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("Neighbors() returned %d entries, want 2 (local excluded): %+v", len(plans), plans)
	}
	for _, p := range plans {
		if p.Neighbor == 100 {
			t.Fatalf("Neighbors() included the local node")
		}
	}
}

func TestInsertContactIdempotent(t *testing.T) {
	a := openTestAdapter(t, 1, nil)
	ctx := context.Background()
	from := time.Unix(1700000000, 0)
	to := time.Unix(1700003600, 0)

	res, err := a.InsertContact(ctx, 1, from, to, 10, 20, 100000, 1.0)
	if err != nil {
		t.Fatalf("InsertContact: %v", err)
	}
	if res != Ok {
		t.Fatalf("first insert = %v, want Ok", res)
	}

	res, err = a.InsertContact(ctx, 1, from, to, 10, 20, 100000, 1.0)
	if err != nil {
		t.Fatalf("InsertContact (repeat): %v", err)
	}
	if res != Duplicate {
		t.Fatalf("repeat identical insert = %v, want Duplicate", res)
	}

	res, err = a.InsertContact(ctx, 1, from, to, 10, 20, 50000, 1.0)
	if err != nil {
		t.Fatalf("InsertContact (conflicting): %v", err)
	}
	if res != AlreadyExists {
		t.Fatalf("conflicting insert = %v, want AlreadyExists", res)
	}
}

func TestInsertContactBidirectional(t *testing.T) {
	a := openTestAdapter(t, 1, nil)
	ctx := context.Background()
	from := time.Unix(1700000000, 0)
	to := time.Unix(1700003600, 0)

	if _, err := a.InsertContact(ctx, 1, from, to, 10, 20, 100000, 1.0); err != nil {
		t.Fatalf("InsertContact forward: %v", err)
	}
	if _, err := a.InsertContact(ctx, 1, from, to, 20, 10, 100000, 1.0); err != nil {
		t.Fatalf("InsertContact reverse: %v", err)
	}
	contacts, err := a.ListContacts(ctx)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("ListContacts() = %d rows, want 2 (both directions)", len(contacts))
	}
}

func TestInsertRangeIdempotent(t *testing.T) {
	a := openTestAdapter(t, 1, nil)
	ctx := context.Background()
	from := time.Unix(1700000000, 0)
	to := time.Unix(1700003600, 0)

	res, err := a.InsertRange(ctx, from, to, 10, 20, 1.0)
	if err != nil {
		t.Fatalf("InsertRange: %v", err)
	}
	if res != Ok {
		t.Fatalf("first insert = %v, want Ok", res)
	}
	res, err = a.InsertRange(ctx, from, to, 10, 20, 1.0)
	if err != nil {
		t.Fatalf("InsertRange (repeat): %v", err)
	}
	if res != Duplicate {
		t.Fatalf("repeat insert = %v, want Duplicate", res)
	}
}

func TestIsAvailable(t *testing.T) {
	a := openTestAdapter(t, 1, nil)
	if !a.IsAvailable(context.Background()) {
		t.Fatalf("expected a freshly opened adapter to be available")
	}
	a.Close()
	if a.IsAvailable(context.Background()) {
		t.Fatalf("expected a closed adapter to report unavailable")
	}
}
