package peers

import (
	"testing"
	"time"

	"github.com/navedmerchant/mydeviceai-link/pkg/memkv"
)

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	kv := memkv.New(memkv.Options{})
	return NewStore(kv), kv.Close
}

func TestUpsertGetRoundTrip(t *testing.T) {
	s, done := newTestStore(t)
	defer done()

	in := PeerRecord{ID: "p1", ClientID: "pk:ed25519:abc", Impl: "mydeviceai-host", Version: "2.1.0", LastSeen: 42}
	s.Upsert(in)
	out, ok := s.Get("p1")
	if !ok {
		t.Fatalf("record missing")
	}
	if out != in {
		t.Fatalf("roundtrip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestMutateCreatesWhenAbsent(t *testing.T) {
	s, done := newTestStore(t)
	defer done()

	s.SetHello("p1", "c1", "host", "1.0")
	rec, ok := s.Get("p1")
	if !ok || rec.ClientID != "c1" || rec.Impl != "host" {
		t.Fatalf("hello not recorded: %+v", rec)
	}

	s.SetNegotiation("p1", "compatible", "1.0.0", "")
	s.SetModel("p1", "m1", "Test Model", true)
	rec, _ = s.Get("p1")
	if rec.Negotiation != "compatible" || rec.ModelID != "m1" || !rec.ModelInstalled {
		t.Fatalf("updates lost: %+v", rec)
	}
	// earlier fields survive later mutations
	if rec.ClientID != "c1" {
		t.Fatalf("hello fields lost: %+v", rec)
	}
}

func TestRecordExchangeAccumulates(t *testing.T) {
	s, done := newTestStore(t)
	defer done()

	s.RecordExchange("p1", 10, 0, 1, 0)
	s.RecordExchange("p1", 5, 7, 1, 1)
	rec, _ := s.Get("p1")
	if rec.BytesIn != 15 || rec.BytesOut != 7 || rec.MsgsIn != 2 || rec.MsgsOut != 1 {
		t.Fatalf("counters wrong: %+v", rec)
	}
}

func TestDeleteAndList(t *testing.T) {
	s, done := newTestStore(t)
	defer done()

	s.Touch("p1", time.Now())
	s.Touch("p2", time.Now())
	if ids := s.ListPeerIDs(); len(ids) != 2 {
		t.Fatalf("want 2 peers, got %v", ids)
	}
	s.Delete("p1")
	if _, ok := s.Get("p1"); ok {
		t.Fatalf("record survived delete")
	}
	if ids := s.ListPeerIDs(); len(ids) != 1 {
		t.Fatalf("index not pruned: %v", ids)
	}
}
