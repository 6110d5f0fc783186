package cache

import (
	"sync"

	"github.com/IvanBrykalov/resstore/internal/util"
)

// indexSlotOverhead is charged to the Allocator per index slot.
const indexSlotOverhead = 48

// index maps indirect keys to entries. It is sharded and each shard carries
// its own RWMutex: index mutation happens outside the allocation lock, so the
// index must synchronize itself.
//
// Lock order: the allocation lock may be held while taking a shard lock
// (find), never the other way round.
type index struct {
	shards []indexShard
	alloc  Allocator
}

type indexShard struct {
	mu sync.RWMutex
	m  map[refKey]*entry
	_  util.CacheLinePad
}

func newIndex(shards int, a Allocator) *index {
	if shards <= 0 {
		shards = util.ReasonableShardCount()
	}
	shards = int(util.NextPow2(uint64(shards)))
	ix := &index{shards: make([]indexShard, shards), alloc: a}
	for i := range ix.shards {
		ix.shards[i].m = make(map[refKey]*entry)
	}
	return ix
}

func (ix *index) shard(k refKey) *indexShard {
	return &ix.shards[util.ShardIndex(util.HashRef(k.num, k.gen), len(ix.shards))]
}

// insert adds k→e. It fails if the slot cannot be allocated, if k is already
// mapped, or if the index was destroyed.
func (ix *index) insert(k refKey, e *entry) bool {
	if err := ix.alloc.Alloc(indexSlotOverhead); err != nil {
		return false
	}
	sh := ix.shard(k)
	sh.mu.Lock()
	if _, exists := sh.m[k]; exists || sh.m == nil {
		sh.mu.Unlock()
		ix.alloc.Free(indexSlotOverhead)
		return false
	}
	sh.m[k] = e
	sh.mu.Unlock()
	return true
}

// find returns the entry mapped to k, or nil.
func (ix *index) find(k refKey) *entry {
	sh := ix.shard(k)
	sh.mu.RLock()
	e := sh.m[k]
	sh.mu.RUnlock()
	return e
}

// remove deletes k only if it still maps to e, so a stale eviction never
// removes a newer entry admitted under the same key.
func (ix *index) remove(k refKey, e *entry) {
	sh := ix.shard(k)
	sh.mu.Lock()
	if cur, ok := sh.m[k]; ok && cur == e {
		delete(sh.m, k)
		sh.mu.Unlock()
		ix.alloc.Free(indexSlotOverhead)
		return
	}
	sh.mu.Unlock()
}

// len returns the number of mapped keys.
func (ix *index) len() int {
	n := 0
	for i := range ix.shards {
		sh := &ix.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// destroy releases every slot; later inserts fail.
func (ix *index) destroy() {
	for i := range ix.shards {
		sh := &ix.shards[i]
		sh.mu.Lock()
		n := len(sh.m)
		sh.m = nil
		sh.mu.Unlock()
		ix.alloc.Free(int64(n) * indexSlotOverhead)
	}
}
