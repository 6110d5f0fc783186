package cache

// -------------------- eviction (allocation lock held) --------------------
//
// Evicting an entry may run arbitrary code (OnEvict, Finalize) that is
// allowed to call back into the store, so the lock is released around it.
// Any list position remembered across an eviction is therefore suspect.

// ensureSpaceLocked frees at least tofree bytes of evictable entries, LRU
// first, and returns the amount freed. When the evictable total cannot cover
// tofree nothing is evicted and 0 is returned.
func (s *Store) ensureSpaceLocked(tofree uint64) uint64 {
	s.lock.AssertHeld()

	var avail uint64
	for e := s.tail; e != nil && avail < tofree; e = e.prev {
		if evictableLocked(e.val) {
			avail = addSat(avail, e.size)
		}
	}
	if avail < tofree {
		return 0
	}
	return s.sweepLocked(tofree, EvictCapacity)
}

// sweepLocked walks the list from the tail and evicts every entry the store
// alone references until tofree bytes are released or the list is exhausted.
//
// The predecessor of the entry being evicted is pinned across the unlocked
// window so it cannot be finalized under the walk. If it was unlinked in the
// meantime the walk restarts from the tail.
func (s *Store) sweepLocked(tofree uint64, reason EvictReason) uint64 {
	s.lock.AssertHeld()

	var freed uint64
	e := s.tail
	for e != nil {
		prev := e.prev
		if !evictableLocked(e.val) {
			e = prev
			continue
		}

		freed = addSat(freed, e.size)
		pinned := prev != nil && pinLocked(prev.val)
		s.evictLocked(e, reason)
		if pinned && dropLocked(prev.val) {
			s.lock.Unlock()
			prev.val.Finalize()
			s.lock.Lock()
		}
		if freed >= tofree {
			break
		}
		if prev != nil && !prev.linked {
			prev = s.tail
		}
		e = prev
	}
	return freed
}

// evictLocked unlinks e and releases the store's reference. The lock is
// dropped while OnEvict, the finalizer and index removal run.
func (s *Store) evictLocked(e *entry, reason EvictReason) {
	s.size = subSat(s.size, e.size)
	s.unlink(e)
	last := dropLocked(e.val)
	s.opt.Metrics.Size(s.n, s.size)
	s.lock.Unlock()

	s.evicts[reason].Add(1)
	s.opt.Metrics.Evict(reason)
	if s.opt.OnEvict != nil {
		s.opt.OnEvict(e.key, e.val, reason)
	}
	s.discard(e, last)

	s.lock.Lock()
}
