package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"dtnex/internal/config"
	"dtnex/internal/dtnproto"
	"dtnex/internal/metrics"
	"dtnex/internal/security"
	"dtnex/internal/transport"
)

func testEngine(t *testing.T, localID uint64, rtr *fakeRouter, trans transport.Adapter) *Engine {
	t.Helper()
	cfg := config.Defaults()
	cfg.LocalNodeID = localID
	ctx := context.Background()
	e, err := New(ctx, cfg, rtr, trans, metrics.New(), zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// S1 (originate).
func TestS1Originate(t *testing.T) {
	const local = uint64(268484800)
	net := transport.NewNetwork()
	trans := net.NewAdapter(local)
	net.NewAdapter(268484801)
	net.NewAdapter(268484802)
	rtr := newFakeRouter(local, 268484801, 268484802)
	e := testEngine(t, local, rtr, trans)

	if err := e.OriginateBroadcast(context.Background()); err != nil {
		t.Fatalf("OriginateBroadcast: %v", err)
	}

	sent := net.Sent()
	if len(sent) != 4 {
		t.Fatalf("want 4 sends, got %d", len(sent))
	}
	for _, s := range sent {
		env, err := dtnproto.Decode(s.Payload, false)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Version != 2 || env.Type != dtnproto.TypeContact {
			t.Fatalf("unexpected envelope shape: %+v", env)
		}
		if env.Origin != local || env.From != local {
			t.Fatalf("want origin=from=%d, got origin=%d from=%d", local, env.Origin, env.From)
		}
		if env.Payload.Contact.DurationMinutes != 60 {
			t.Fatalf("want duration_minutes=60, got %d", env.Payload.Contact.DurationMinutes)
		}
		if env.ExpireTime <= env.Timestamp {
			t.Fatalf("want expire_time > timestamp")
		}
		if !dtnproto.VerifyMAC(s.Payload, security.NewAuthenticator("open")) {
			t.Fatalf("mac did not verify under shared key")
		}
	}
}

func encodeS2(t *testing.T) ([]byte, dtnproto.Fields) {
	t.Helper()
	// The timestamp is the current whole second, so the envelope is still
	// unexpired when HandleInbound checks it against the wall clock.
	// ExpireTime (timestamp+7200s) is deliberately set well past the
	// contact's own duration_minutes*60 (60*60=3600s) window, so a test
	// that mixed the two up would fail.
	ts := time.Unix(time.Now().Unix(), 0)
	fields := dtnproto.Fields{
		Timestamp:  ts,
		ExpireTime: ts.Add(7200 * time.Second),
		Origin:     268484900,
		From:       268484900,
		Nonce:      [3]byte{0xA1, 0xB2, 0xC3},
	}
	contact := dtnproto.Contact{NodeA: 268484900, NodeB: 268484901, DurationMinutes: 60}
	buf, err := dtnproto.EncodeContact(fields, contact, security.NewAuthenticator("open"))
	if err != nil {
		t.Fatalf("EncodeContact: %v", err)
	}
	return buf, fields
}

// S2 (accept+install).
func TestS2AcceptAndInstall(t *testing.T) {
	const local = uint64(268484850)
	net := transport.NewNetwork()
	trans := net.NewAdapter(local)
	rtr := newFakeRouter(local)
	e := testEngine(t, local, rtr, trans)

	buf, fields := encodeS2(t)
	e.HandleInbound(context.Background(), buf)

	if len(rtr.contacts) != 2 {
		t.Fatalf("want 2 insert_contact calls, got %d: %+v", len(rtr.contacts), rtr.contacts)
	}
	if len(rtr.ranges) != 2 {
		t.Fatalf("want 2 insert_range calls, got %d: %+v", len(rtr.ranges), rtr.ranges)
	}
	seen := map[[2]uint64]bool{}
	for _, c := range rtr.contacts {
		seen[[2]uint64{c.Src, c.Dst}] = true
	}
	if !seen[[2]uint64{268484900, 268484901}] || !seen[[2]uint64{268484901, 268484900}] {
		t.Fatalf("want both directions installed, got %+v", rtr.contacts)
	}

	// The installed window must run from the envelope's timestamp for
	// duration_minutes (60 -> 3600s), not from its expire_time (7200s out).
	wantFrom := fields.Timestamp
	wantTo := fields.Timestamp.Add(60 * time.Minute)
	for _, c := range rtr.contacts {
		if !c.From.Equal(wantFrom) || !c.To.Equal(wantTo) {
			t.Fatalf("want contact window [%v,%v], got [%v,%v]", wantFrom, wantTo, c.From, c.To)
		}
	}
	for _, r := range rtr.ranges {
		if !r.From.Equal(wantFrom) || !r.To.Equal(wantTo) {
			t.Fatalf("want range window [%v,%v], got [%v,%v]", wantFrom, wantTo, r.From, r.To)
		}
	}
}

// S3 (replay drop).
func TestS3ReplayDrop(t *testing.T) {
	const local = uint64(268484850)
	net := transport.NewNetwork()
	trans := net.NewAdapter(local)
	rtr := newFakeRouter(local)
	e := testEngine(t, local, rtr, trans)

	buf, _ := encodeS2(t)
	e.HandleInbound(context.Background(), buf)
	firstContacts := len(rtr.contacts)
	net.Reset()

	e.HandleInbound(context.Background(), buf)
	if len(rtr.contacts) != firstContacts {
		t.Fatalf("replay must not trigger new router calls: before=%d after=%d", firstContacts, len(rtr.contacts))
	}
	if len(net.Sent()) != 0 {
		t.Fatalf("replay must not forward, got %d sends", len(net.Sent()))
	}
}

// S4 (tampered MAC).
func TestS4TamperedMAC(t *testing.T) {
	const local = uint64(268484850)
	net := transport.NewNetwork()
	trans := net.NewAdapter(local)
	rtr := newFakeRouter(local)
	e := testEngine(t, local, rtr, trans)

	buf, _ := encodeS2(t)
	tampered := append([]byte{}, buf...)
	tampered[headerSizeForTest()+2] ^= 0x01 // flip one bit of node_a in the payload, MAC untouched

	e.HandleInbound(context.Background(), tampered)

	if len(rtr.contacts) != 0 || len(rtr.ranges) != 0 {
		t.Fatalf("tampered envelope must not install anything")
	}
	if len(net.Sent()) != 0 {
		t.Fatalf("tampered envelope must not forward")
	}
}

// headerSizeForTest mirrors dtnproto's internal header layout (version,
// type, timestamp, expire_time, origin, from, nonce) without exporting it.
func headerSizeForTest() int { return 1 + 1 + 8 + 8 + 8 + 8 + 3 }

// S5 (forward rewrites from only).
func TestS5ForwardRewritesFromOnly(t *testing.T) {
	const local = uint64(268484850)
	net := transport.NewNetwork()
	trans := net.NewAdapter(local)
	net.NewAdapter(268484900)
	net.NewAdapter(268484901)
	net.NewAdapter(268484902)
	rtr := newFakeRouter(local, 268484900, 268484901, 268484902)
	e := testEngine(t, local, rtr, trans)

	buf, _ := encodeS2(t)
	e.HandleInbound(context.Background(), buf)

	// Neighbors {268484900, 268484901, 268484902} minus origin=from=268484900
	// and local_id leave 268484901 (node_b, still a neighbor) and 268484902.
	sent := net.Sent()
	if len(sent) != 2 {
		t.Fatalf("want exactly 2 forwards (excluding origin=from=268484900 and local_id), got %d: %+v", len(sent), sent)
	}
	dsts := map[uint64]bool{}
	for _, s := range sent {
		dsts[s.To.Node] = true
	}
	if !dsts[268484901] || !dsts[268484902] {
		t.Fatalf("want forwards to 268484901 and 268484902, got %+v", sent)
	}
	for _, s := range sent {
		env, err := dtnproto.Decode(s.Payload, false)
		if err != nil {
			t.Fatalf("decode forwarded: %v", err)
		}
		if env.Origin != 268484900 {
			t.Fatalf("origin must be preserved, got %d", env.Origin)
		}
		if env.Nonce != [3]byte{0xA1, 0xB2, 0xC3} {
			t.Fatalf("nonce must be preserved, got %x", env.Nonce)
		}
		if env.From != local {
			t.Fatalf("from must be rewritten to local id, got %d", env.From)
		}
		if !dtnproto.VerifyMAC(s.Payload, security.NewAuthenticator("open")) {
			t.Fatalf("forwarded mac must verify (recomputed)")
		}
	}
}

// S6 (metadata GPS).
func TestS6MetadataGPS(t *testing.T) {
	const local = uint64(268484850)
	net := transport.NewNetwork()
	trans := net.NewAdapter(local)
	rtr := newFakeRouter(local)
	e := testEngine(t, local, rtr, trans)

	lat, lon := int32(59334591), int32(18063240)
	fields := dtnproto.Fields{
		Timestamp:  time.Now(),
		ExpireTime: time.Now().Add(time.Hour),
		Origin:     268484800,
		From:       268484800,
		Nonce:      [3]byte{1, 2, 3},
	}
	m := dtnproto.Metadata{NodeID: 268484800, Name: "Gateway", Contact: "ops@x", LatitudeMicroDeg: &lat, LongitudeMicroDeg: &lon}
	buf, err := dtnproto.EncodeMetadata(fields, m, security.NewAuthenticator("open"))
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}

	e.HandleInbound(context.Background(), buf)

	rec, ok := e.meta.Get(268484800)
	if !ok {
		t.Fatalf("expected metadata record for 268484800")
	}
	if float64(*rec.LatitudeMicroDeg)/1e6 != 59.334591 {
		t.Fatalf("latitude mismatch: %v", *rec.LatitudeMicroDeg)
	}
	if float64(*rec.LongitudeMicroDeg)/1e6 != 18.06324 {
		t.Fatalf("longitude mismatch: %v", *rec.LongitudeMicroDeg)
	}
}

// Invariant 9: metadata upsert keeps the latest payload.
func TestMetadataUpsertKeepsLatest(t *testing.T) {
	const local = uint64(1)
	net := transport.NewNetwork()
	trans := net.NewAdapter(local)
	rtr := newFakeRouter(local)
	e := testEngine(t, local, rtr, trans)
	auth := security.NewAuthenticator("open")

	send := func(name string, nonce byte) {
		fields := dtnproto.Fields{Timestamp: time.Now(), ExpireTime: time.Now().Add(time.Hour), Origin: 99, From: 99, Nonce: [3]byte{nonce, 0, 0}}
		buf, err := dtnproto.EncodeMetadata(fields, dtnproto.Metadata{NodeID: 99, Name: name, Contact: "c"}, auth)
		if err != nil {
			t.Fatalf("EncodeMetadata: %v", err)
		}
		e.HandleInbound(context.Background(), buf)
	}
	send("first", 1)
	send("second", 2)

	rec, ok := e.meta.Get(99)
	if !ok || rec.Name != "second" {
		t.Fatalf("want latest record 'second', got %+v ok=%v", rec, ok)
	}
}

// Invariant 10: forward filter produces exactly |N \ {origin,from,local}| sends.
func TestForwardFilterCount(t *testing.T) {
	const local = uint64(1)
	net := transport.NewNetwork()
	trans := net.NewAdapter(local)
	neighbors := []uint64{2, 3, 4, 5}
	for _, n := range neighbors {
		net.NewAdapter(n)
	}
	rtr := newFakeRouter(local, neighbors...)
	e := testEngine(t, local, rtr, trans)

	fields := dtnproto.Fields{Timestamp: time.Now(), ExpireTime: time.Now().Add(time.Hour), Origin: 2, From: 3, Nonce: [3]byte{9, 9, 9}}
	buf, err := dtnproto.EncodeContact(fields, dtnproto.Contact{NodeA: 2, NodeB: 4, DurationMinutes: 10}, security.NewAuthenticator("open"))
	if err != nil {
		t.Fatalf("EncodeContact: %v", err)
	}
	e.HandleInbound(context.Background(), buf)

	sent := net.Sent()
	if len(sent) != 2 { // neighbors {2,3,4,5} \ {origin=2, from=3, local=1} = {4,5}
		t.Fatalf("want 2 forwards, got %d: %+v", len(sent), sent)
	}
}
