package cache

import (
	"log/slog"
	"sync/atomic"

	"github.com/IvanBrykalov/resstore/alloc"
	"github.com/IvanBrykalov/resstore/internal/singleflight"
	"github.com/IvanBrykalov/resstore/internal/util"
	"github.com/IvanBrykalov/resstore/object"
)

// Store is a bounded, reference-counted LRU cache of storables keyed by
// document objects. All methods are safe for concurrent use.
//
// Entries with indirect keys are found through a hash index in O(1); entries
// with opaque keys are found by scanning the LRU list. The store holds one
// reference to every cached value and only evicts values nobody else holds.
type Store struct {
	lock  *alloc.Lock
	alloc Allocator
	opt   Options
	log   *slog.Logger

	// ---- guarded by lock ----
	refs       int    // owners of the store itself
	max        uint64 // Unlimited or the size bound
	size       uint64 // sum of declared sizes of linked entries
	head, tail *entry // MRU, LRU
	n          int    // linked entries

	index   *index
	flights singleflight.Group[refKey, Storable]
	closed  atomic.Bool

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_         util.CacheLinePad
	hits      util.PaddedAtomicUint64
	misses    util.PaddedAtomicUint64
	rejected  util.PaddedAtomicUint64
	scavenges util.PaddedAtomicUint64
	evicts    [numEvictReasons]util.PaddedAtomicUint64
}

// New creates a store holding one reference to itself (released by Close).
func New(opt Options) *Store {
	if opt.Lock == nil {
		opt.Lock = alloc.NewLock("alloc")
	}
	if opt.Allocator == nil {
		opt.Allocator = noAlloc{}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		lock:  opt.Lock,
		alloc: opt.Allocator,
		opt:   opt,
		log:   opt.Logger,
		refs:  1,
		max:   opt.MaxSize,
		index: newIndex(opt.IndexShards, opt.Allocator),
	}
}

// Share adds an owner to the store and returns it, or nil once the last
// owner has closed it.
func (s *Store) Share() *Store {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.refs <= 0 {
		return nil
	}
	s.refs++
	return s
}

// Close releases one owner. The last Close evicts everything, destroys the
// index and turns every later operation into a no-op. It always returns nil.
func (s *Store) Close() error {
	s.lock.Lock()
	if s.refs <= 0 {
		s.lock.Unlock()
		return nil
	}
	s.refs--
	last := s.refs == 0
	s.lock.Unlock()
	if !last {
		return nil
	}

	s.closed.Store(true)
	s.Clear()
	s.index.destroy()
	s.log.Info("store: torn down", "evictions", s.Stats().Evictions)
	return nil
}

// ---- storable references ----

// Keep adds a reference to v and returns it. Static and dead values are
// returned unchanged.
func (s *Store) Keep(v Storable) Storable {
	if v == nil {
		return nil
	}
	s.lock.Lock()
	keepLocked(v)
	s.lock.Unlock()
	return v
}

// Drop releases a reference to v. Dropping the last reference finalizes v
// after the lock is released.
func (s *Store) Drop(v Storable) {
	if v == nil {
		return
	}
	s.lock.Lock()
	last := dropLocked(v)
	s.lock.Unlock()
	if last {
		v.Finalize()
	}
}

// RefCount reports v's reference count, or static=true for immortal values.
// A nil value reports 0, false.
func (s *Store) RefCount(v Storable) (n int, static bool) {
	if v == nil {
		return 0, false
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	r := v.refCount()
	return r.n, r.static
}

// ---- store protocol ----

// Insert caches v under key, accounting size bytes against MaxSize.
// The caller keeps its own reference; on success the store takes another.
// Failure to cache (bookkeeping allocation, index conflict, not enough
// evictable space) is silent and leaves the caller's reference untouched.
func (s *Store) Insert(key object.Object, v Storable, size uint64) {
	if key == nil || v == nil || s.closed.Load() {
		return
	}
	e := newEntry(key, v, size)
	if err := s.alloc.Alloc(entryOverhead); err != nil {
		s.reject("allocation failed", key, size)
		return
	}

	s.lock.Lock()
	if s.max != Unlimited {
		for {
			need := addSat(s.size, size)
			if need <= s.max {
				break
			}
			// ensureSpaceLocked may drop and retake the lock.
			if s.ensureSpaceLocked(need-s.max) == 0 {
				s.lock.Unlock()
				s.alloc.Free(entryOverhead)
				s.reject("cannot free enough space", key, size)
				return
			}
		}
	}
	s.size = addSat(s.size, size)
	e.key = key.Keep()

	indexed := true
	if e.indirect {
		s.lock.Unlock()
		indexed = s.index.insert(e.ref, e)
		s.lock.Lock()
	}
	if !indexed || s.closed.Load() {
		// Key conflict, or torn down while the lock was released.
		s.size = subSat(s.size, size)
		s.lock.Unlock()
		s.discard(e, false)
		why := "index insert failed"
		if indexed {
			why = "store closed"
		}
		s.reject(why, key, size)
		return
	}

	keepLocked(v)
	s.pushFront(e)
	s.opt.Metrics.Size(s.n, s.size)
	s.lock.Unlock()
}

// Lookup returns the value cached under (kind, key) with a new reference the
// caller must Drop, or nil. A hit moves the entry to the MRU position.
func (s *Store) Lookup(kind Kind, key object.Object) Storable {
	if key == nil || s.closed.Load() {
		return nil
	}
	s.lock.Lock()
	e := s.findLocked(kind, key)
	if e == nil {
		s.lock.Unlock()
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		return nil
	}
	s.moveToFront(e)
	keepLocked(e.val)
	v := e.val
	s.lock.Unlock()

	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return v
}

// Find is Lookup typed by the stored value's concrete type.
func Find[T Storable](s *Store, key object.Object) (T, bool) {
	v, ok := s.Lookup(KindFor[T](), key).(T)
	return v, ok
}

// Remove drops the entry cached under (kind, key), if any, and reports
// whether one was found.
func (s *Store) Remove(kind Kind, key object.Object) bool {
	if key == nil || s.closed.Load() {
		return false
	}
	s.lock.Lock()
	e := s.findLocked(kind, key)
	if e == nil {
		s.lock.Unlock()
		return false
	}
	s.size = subSat(s.size, e.size)
	s.unlink(e)
	last := dropLocked(e.val)
	s.opt.Metrics.Size(s.n, s.size)
	s.lock.Unlock()

	s.discard(e, last)
	return true
}

// Clear evicts every entry, MRU first, regardless of outside references.
func (s *Store) Clear() {
	s.lock.Lock()
	for s.head != nil {
		s.evictLocked(s.head, EvictClear)
	}
	s.lock.Unlock()
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.n
}

// Size returns the sum of declared sizes of cached entries.
func (s *Store) Size() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.size
}

// MaxSize returns the size bound, or Unlimited.
func (s *Store) MaxSize() uint64 { return s.max }

// -------------------- internals --------------------

// findLocked locates a linked entry: through the index for indirect keys,
// by scanning the list MRU-first for opaque ones.
func (s *Store) findLocked(kind Kind, key object.Object) *entry {
	if num, gen, ok := key.Indirect(); ok {
		e := s.index.find(refKey{num: num, gen: gen, kind: kind})
		if e == nil || !e.linked {
			return nil
		}
		return e
	}
	for e := s.head; e != nil; e = e.next {
		if e.kind == kind && e.key.Equal(key) {
			return e
		}
	}
	return nil
}

// discard finishes removing an unlinked entry outside the lock: index slot,
// finalizer (when the store held the last reference), key ownership and
// bookkeeping memory.
func (s *Store) discard(e *entry, finalize bool) {
	if e.indirect {
		s.index.remove(e.ref, e)
	}
	if finalize {
		e.val.Finalize()
	}
	e.key.Drop()
	s.alloc.Free(entryOverhead)
}

func (s *Store) reject(why string, key object.Object, size uint64) {
	s.rejected.Add(1)
	s.log.Debug("store: not caching", "reason", why, "key", key.String(), "size", size)
}

// addSat adds without wrapping past the top of uint64.
func addSat(a, b uint64) uint64 {
	if c := a + b; c >= a {
		return c
	}
	return ^uint64(0)
}

// subSat subtracts, stopping at zero.
func subSat(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
