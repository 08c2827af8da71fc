package metastore

import (
	"testing"

	"dtnex/internal/dtnproto"
)

func TestPutGetUpsert(t *testing.T) {
	s := New()
	if _, ok := s.Get(1); ok {
		t.Fatalf("expected no record before any Put")
	}
	s.Put(dtnproto.Metadata{NodeID: 1, Name: "first", Contact: "a"})
	s.Put(dtnproto.Metadata{NodeID: 1, Name: "second", Contact: "b"})

	got, ok := s.Get(1)
	if !ok {
		t.Fatalf("expected record after Put")
	}
	if got.Name != "second" {
		t.Fatalf("Get returned stale record: %+v, want the later payload", got)
	}
}

func TestIterAndLen(t *testing.T) {
	s := New()
	s.Put(dtnproto.Metadata{NodeID: 1, Name: "a"})
	s.Put(dtnproto.Metadata{NodeID: 2, Name: "b"})
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if len(s.Iter()) != 2 {
		t.Fatalf("Iter() returned %d records, want 2", len(s.Iter()))
	}
}
