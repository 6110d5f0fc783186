// Package alloc provides the allocation lock and the memory budget shared by
// the resource store and its callers.
//
// # Lock
//
// Lock is a mutex with an "is held" flag. The store guards its list, its size
// accounting and every storable reference count with one Lock:
//
//	l := alloc.NewLock("alloc")
//	l.Lock()
//	l.AssertHeld()
//	l.Unlock()
//
// # Budget
//
// Budget tracks reserved bytes against an optional hard limit using a weighted
// semaphore. When a request does not fit, Alloc enters a retry loop that asks
// the registered Scavenger (normally a *cache.Store) to release memory in
// progressively more aggressive phases:
//
//	b := alloc.NewBudget(alloc.Config{LimitBytes: 64 << 20})
//	b.SetScavenger(store)
//	if err := b.Alloc(4096); err != nil {
//	    // errors.Is(err, alloc.ErrOutOfMemory): a hard failure
//	}
//	defer b.Free(4096)
//
// # Nil Safety
//
// All Budget methods accept a nil receiver and become no-ops, so the budget is
// optional wherever it is threaded through.
package alloc
