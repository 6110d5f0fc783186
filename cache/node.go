package cache

import (
	"unsafe"

	"github.com/IvanBrykalov/resstore/object"
)

// entry binds a key to a storable in the store. It is an intrusive doubly
// linked list element (head is MRU, tail is LRU) and, for indirect keys, the
// value of one cache index slot.
type entry struct {
	key  object.Object // owned: kept on admission, dropped on discard
	kind Kind
	val  Storable // the store's reference
	size uint64   // declared size, accounting only

	// Index key; valid iff indirect.
	ref      refKey
	indirect bool

	// List links and membership, guarded by the allocation lock.
	// An entry can be reachable from the index while not linked (insert or
	// eviction in flight); such entries are invisible to lookups.
	prev, next *entry
	linked     bool
}

// refKey is the cache index key of an indirect entry.
type refKey struct {
	num, gen int
	kind     Kind
}

// entryOverhead is the bookkeeping charged to the Allocator per entry.
const entryOverhead = int64(unsafe.Sizeof(entry{}))

func newEntry(key object.Object, v Storable, size uint64) *entry {
	e := &entry{key: key, kind: KindOf(v), val: v, size: size}
	if num, gen, ok := key.Indirect(); ok {
		e.indirect = true
		e.ref = refKey{num: num, gen: gen, kind: e.kind}
	}
	return e
}
