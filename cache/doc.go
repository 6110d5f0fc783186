// Package cache provides the resource store: a bounded, reference-counted,
// least-recently-used cache for expensive objects derived from a document
// (decoded images, parsed fonts, colour spaces, compiled functions).
//
// Design
//
//   - Storables: every cached value embeds Refs and implements Finalize.
//     Counts are mutated only under the allocation lock (alloc.Lock); the
//     store holds one reference to each cached value. Static values are
//     immortal: never finalized and never evicted for space.
//
//   - Keys: a key is an object.Object plus the value's Kind (its dynamic Go
//     type). Indirect keys (document references "7 0 R") are found through
//     a sharded hash index; opaque keys (names, arrays) by scanning the LRU
//     list from the most recently used end.
//
//   - Ordering: an intrusive MRU↔LRU doubly linked list. Lookups promote to
//     MRU; eviction walks from the LRU tail and only takes entries whose sole
//     owner is the store.
//
//   - Capacity: MaxSize bounds the sum of declared sizes. An Insert that does
//     not fit first checks that enough evictable bytes exist, then evicts them.
//     If they do not, the value is simply not cached.
//
//   - Scavenging: Store implements alloc.Scavenger. An alloc.Budget calls
//     Scavenge with a phase counter when an allocation fails; each phase
//     lowers the allowed footprint until, at phase 16, everything evictable
//     may go.
//
//   - Reentrancy: Finalize and OnEvict run with the allocation lock released
//     and may call back into the store.
//
//   - Errors: caching is an optimization. Failed inserts are silent (counted
//     in Stats.Rejected). Only Scavenge reports failure, as a bool.
//
// Basic usage
//
//	s := cache.New(cache.Options{MaxSize: 64 << 20})
//	defer s.Close()
//
//	img := &Image{Refs: cache.Counted(), pix: pix}
//	s.Insert(object.NewRef(7, 0), img, uint64(len(pix)))
//	s.Drop(img) // the store keeps its own reference
//
//	if img, ok := cache.Find[*Image](s, object.NewRef(7, 0)); ok {
//	    defer s.Drop(img)
//	    // use img
//	}
//
// With GetOrLoad (singleflight)
//
//	img, err := cache.GetOrLoad(ctx, s, ref, func(ctx context.Context) (*Image, uint64, error) {
//	    return decodeImage(ctx, ref)
//	})
//
// Under a memory budget
//
//	b := alloc.NewBudget(alloc.Config{LimitBytes: 512 << 20})
//	s := cache.New(cache.Options{Allocator: b})
//	b.SetScavenger(s)
//
// Exporting metrics (Prometheus adapter)
//
//	m := prom.New(nil, "resstore", "doc") // implements Metrics
//	s := cache.New(cache.Options{Metrics: m})
package cache
