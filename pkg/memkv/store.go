// Package memkv is a sharded in-memory key-value store with per-key TTL.
// It backs the peer record store; values are opaque byte slices encoded by
// the caller. Expired keys are removed lazily on access and proactively by
// a background expirer driven by a deadline heap.
package memkv

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// Options tunes the store. The zero value is usable: values are copied on
// both Set and Get so callers never alias stored bytes.
type Options struct {
	Shards      int  // shard count, default 64
	NoCopyOnSet bool // store caller bytes directly instead of copying
	NoCopyOnGet bool // return stored bytes directly instead of copying
}

func (o Options) withDefaults() Options {
	res := o
	if res.Shards <= 0 {
		res.Shards = 64
	}
	return res
}

type entry struct {
	val      []byte
	expireAt int64 // unix nanos; 0 = no expiry
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*entry
}

// Store is safe for concurrent use.
type Store struct {
	opts    Options
	shards  []shard
	expq    *expQueue
	closeCh chan struct{}
	wg      sync.WaitGroup

	nowFn func() time.Time

	mKeys    atomic.Uint64
	mSets    atomic.Uint64
	mHits    atomic.Uint64
	mMisses  atomic.Uint64
	mExpired atomic.Uint64
}

// New builds a store and starts its expirer goroutine. Call Close when done.
func New(opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		opts:    opts,
		shards:  make([]shard, opts.Shards),
		expq:    newExpQueue(),
		closeCh: make(chan struct{}),
		nowFn:   time.Now,
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]*entry)
	}
	s.wg.Add(1)
	go s.expirer()
	return s
}

// Close stops the expirer and waits for it to exit.
func (s *Store) Close() {
	close(s.closeCh)
	s.expq.wake()
	s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
	// FNV-1a 64
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[int(h%uint64(len(s.shards)))]
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Set stores val under key with an optional TTL (ttl <= 0 means no expiry).
// Returns true when the key was created rather than overwritten.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
	expAt := int64(0)
	if ttl > 0 {
		expAt = s.nowFn().Add(ttl).UnixNano()
	}
	v := val
	if !s.opts.NoCopyOnSet {
		v = copyBytes(val)
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, existed := sh.m[key]
	sh.m[key] = &entry{val: v, expireAt: expAt}
	sh.mu.Unlock()
	if !existed {
		s.mKeys.Add(1)
	}
	s.mSets.Add(1)
	if expAt != 0 {
		s.expq.push(key, expAt)
	}
	return !existed
}

// Get returns the value for key, honoring TTL. Expired entries are removed
// lazily here rather than waiting for the expirer.
func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	var exp int64
	var val []byte
	if ok {
		exp = e.expireAt
		val = e.val
	}
	sh.mu.RUnlock()
	if !ok {
		s.mMisses.Add(1)
		return nil, false
	}
	if exp != 0 && exp <= s.nowFn().UnixNano() {
		s.removeExpired(key)
		s.mMisses.Add(1)
		return nil, false
	}
	s.mHits.Add(1)
	if !s.opts.NoCopyOnGet {
		return copyBytes(val), true
	}
	return val, true
}

// Update applies fn to the current value while holding the shard lock.
// Returns false when the key is absent or already expired.
func (s *Store) Update(key string, fn func(old []byte) []byte) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok {
		return false
	}
	if e.expireAt != 0 && e.expireAt <= s.nowFn().UnixNano() {
		delete(sh.m, key)
		s.mExpired.Add(1)
		s.mKeys.Add(^uint64(0))
		return false
	}
	nv := fn(e.val)
	if !s.opts.NoCopyOnSet {
		nv = copyBytes(nv)
	}
	e.val = nv
	return true
}

// Delete removes key. Returns true if it was present.
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
	if ok {
		s.mKeys.Add(^uint64(0))
	}
	return ok
}

// Expire resets the TTL for an existing key; ttl <= 0 deletes it.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		return s.Delete(key)
	}
	exp := s.nowFn().Add(ttl).UnixNano()
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if !ok {
		sh.mu.Unlock()
		return false
	}
	e.expireAt = exp
	sh.mu.Unlock()
	s.expq.push(key, exp)
	return true
}

// Exists reports whether key is present and unexpired.
func (s *Store) Exists(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Keys returns a snapshot of all live keys.
func (s *Store) Keys() []string {
	now := s.nowFn().UnixNano()
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k, e := range sh.m {
			if e.expireAt == 0 || e.expireAt > now {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Stats is a point-in-time metrics snapshot.
type Stats struct {
	Keys    uint64
	Sets    uint64
	Hits    uint64
	Misses  uint64
	Expired uint64
}

func (s *Store) Metrics() Stats {
	return Stats{
		Keys:    s.mKeys.Load(),
		Sets:    s.mSets.Load(),
		Hits:    s.mHits.Load(),
		Misses:  s.mMisses.Load(),
		Expired: s.mExpired.Load(),
	}
}

func (s *Store) removeExpired(key string) {
	now := s.nowFn().UnixNano()
	sh := s.shardFor(key)
	sh.mu.Lock()
	if e, ok := sh.m[key]; ok && e.expireAt != 0 && e.expireAt <= now {
		delete(sh.m, key)
		s.mExpired.Add(1)
		s.mKeys.Add(^uint64(0))
	}
	sh.mu.Unlock()
}

func (s *Store) expirer() {
	defer s.wg.Done()
	for {
		it, ok := s.expq.waitNext(s.closeCh)
		if !ok {
			return
		}
		now := s.nowFn().UnixNano()
		if it.when > now {
			timer := time.NewTimer(time.Duration(it.when - now))
			select {
			case <-timer.C:
			case <-s.closeCh:
				timer.Stop()
				return
			}
			// re-evaluate the heap head after sleeping
			continue
		}
		s.expq.popHead()
		s.removeExpired(it.key)
	}
}

// expQueue is a deadline min-heap guarded by its own mutex and condition.
type expItem struct {
	when int64
	key  string
}

type expQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []expItem
}

func newExpQueue() *expQueue {
	q := &expQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *expQueue) Len() int            { return len(q.items) }
func (q *expQueue) Less(i, j int) bool  { return q.items[i].when < q.items[j].when }
func (q *expQueue) Swap(i, j int)       { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *expQueue) Push(x any)          { q.items = append(q.items, x.(expItem)) }
func (q *expQueue) Pop() any {
	old := q.items
	n := len(old)
	it := old[n-1]
	q.items = old[:n-1]
	return it
}

func (q *expQueue) push(key string, when int64) {
	q.mu.Lock()
	heap.Push(q, expItem{when: when, key: key})
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *expQueue) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// waitNext blocks until the heap is non-empty or closeCh closes, returning
// the head without removing it.
func (q *expQueue) waitNext(closeCh <-chan struct{}) (expItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		select {
		case <-closeCh:
			return expItem{}, false
		default:
		}
		q.cond.Wait()
		select {
		case <-closeCh:
			return expItem{}, false
		default:
		}
	}
	return q.items[0], true
}

func (q *expQueue) popHead() {
	q.mu.Lock()
	if len(q.items) > 0 {
		heap.Pop(q)
	}
	q.mu.Unlock()
}
