// Package metastore holds the in-memory NodeId -> Metadata Record table.
// A plain mutex-guarded map is used rather than a cache library: the table
// has no eviction policy, since it is naturally bounded by the size of the
// neighbor set, so there is nothing an LRU/TTL cache would add.
package metastore

import (
	"sync"

	"dtnex/internal/dtnproto"
)

// Store is a NodeId -> Metadata upsert map, safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records map[uint64]dtnproto.Metadata
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[uint64]dtnproto.Metadata)}
}

// Put replaces any prior record for record.NodeID.
func (s *Store) Put(record dtnproto.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.NodeID] = record
}

// Get returns the last record for nodeID and whether one exists.
func (s *Store) Get(nodeID uint64) (dtnproto.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[nodeID]
	return r, ok
}

// Iter returns a snapshot of all known records.
func (s *Store) Iter() []dtnproto.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dtnproto.Metadata, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// Len reports the number of known records, for diagnostics/metrics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
