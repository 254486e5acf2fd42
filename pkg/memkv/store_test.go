package memkv

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	if created := s.Set("a", []byte("1"), 0); !created {
		t.Fatalf("want created")
	}
	if created := s.Set("a", []byte("2"), 0); created {
		t.Fatalf("want overwrite")
	}
	v, ok := s.Get("a")
	if !ok || string(v) != "2" {
		t.Fatalf("get: %q %v", v, ok)
	}
	if !s.Delete("a") {
		t.Fatalf("delete should report presence")
	}
	if _, ok := s.Get("a"); ok {
		t.Fatalf("deleted key still present")
	}
}

func TestUpdate(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	if s.Update("missing", func(old []byte) []byte { return old }) {
		t.Fatalf("update of missing key must fail")
	}
	s.Set("k", []byte("a"), 0)
	ok := s.Update("k", func(old []byte) []byte { return append(old, 'b') })
	if !ok {
		t.Fatalf("update failed")
	}
	v, _ := s.Get("k")
	if string(v) != "ab" {
		t.Fatalf("got %q", v)
	}
}

func TestLazyExpiry(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	var now atomic.Int64
	now.Store(1000)
	s.nowFn = func() time.Time { return time.Unix(0, now.Load()) }

	s.Set("k", []byte("v"), 10*time.Nanosecond)
	now.Store(2000)
	if _, ok := s.Get("k"); ok {
		t.Fatalf("expired key still readable")
	}
	if s.Metrics().Expired != 1 {
		t.Fatalf("expiry not counted: %+v", s.Metrics())
	}
}

func TestExpirerRemovesKeys(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k", []byte("v"), 20*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Exists("k") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("key not expired by background expirer")
}

func TestExpireResetsTTL(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k", []byte("v"), time.Hour)
	if !s.Expire("k", time.Hour) {
		t.Fatalf("expire failed")
	}
	if s.Expire("missing", time.Hour) {
		t.Fatalf("expire of missing key must fail")
	}
	if s.Expire("k", 0) != true {
		t.Fatalf("ttl<=0 should delete")
	}
	if s.Exists("k") {
		t.Fatalf("key survived Expire(0)")
	}
}

func TestCopySemantics(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	val := []byte("orig")
	s.Set("k", val, 0)
	val[0] = 'X'
	got, _ := s.Get("k")
	if string(got) != "orig" {
		t.Fatalf("store aliased caller bytes: %q", got)
	}
	got[0] = 'Y'
	again, _ := s.Get("k")
	if string(again) != "orig" {
		t.Fatalf("caller mutated stored bytes: %q", again)
	}
}

func TestKeysSnapshot(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("a", nil, 0)
	s.Set("b", nil, 0)
	ks := s.Keys()
	if len(ks) != 2 {
		t.Fatalf("want 2 keys, got %v", ks)
	}
}
