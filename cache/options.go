package cache

import (
	"log/slog"

	"github.com/IvanBrykalov/resstore/alloc"
	"github.com/IvanBrykalov/resstore/object"
)

// Unlimited disables the size bound (Options.MaxSize).
const Unlimited uint64 = 0

// DefaultMaxSize is a reasonable bound for document-processing workloads.
const DefaultMaxSize uint64 = 256 << 20

// EvictReason explains why an entry left the store.
type EvictReason int

const (
	// EvictCapacity: removed to admit a new entry under MaxSize.
	EvictCapacity EvictReason = iota
	// EvictPressure: released by the scavenger on allocation failure.
	EvictPressure
	// EvictClear: removed by Clear or store teardown.
	EvictClear

	numEvictReasons
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictPressure:
		return "pressure"
	case EvictClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Metrics exposes store-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Hooks may be called with the allocation lock held; keep them cheap and
// never call back into the store.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, bytes uint64)
	// Scavenge reports a scavenging phase that released memory.
	Scavenge(phase int, freed uint64)
}

// Allocator accounts the store's own bookkeeping memory (entries and index
// slots). A failed Alloc means "do not cache"; it is never surfaced.
// *alloc.Budget implements Allocator.
type Allocator interface {
	Alloc(n int64) error
	Free(n int64)
}

// Options configures a Store. Zero values are safe; defaults are applied in New:
//   - MaxSize 0      => Unlimited
//   - nil Lock       => a private allocation lock
//   - nil Allocator  => no accounting
//   - nil Metrics    => NoopMetrics
//   - nil Logger     => discard
type Options struct {
	// MaxSize bounds the sum of declared sizes. Unlimited (0) disables it.
	MaxSize uint64

	// Lock is the allocation lock guarding the store and every storable
	// reference count. Share it with other components that must serialize
	// with eviction.
	Lock *alloc.Lock

	// Allocator is charged for entry and index bookkeeping.
	Allocator Allocator

	// IndexShards sets the number of cache index shards (rounded up to a
	// power of two). 0 picks a value from GOMAXPROCS.
	IndexShards int

	// OnEvict is called for every eviction, outside the allocation lock and
	// before the value is finalized. Explicit Remove is not an eviction.
	OnEvict func(key object.Object, v Storable, reason EvictReason)

	Metrics Metrics
	Logger  *slog.Logger
}

type noAlloc struct{}

func (noAlloc) Alloc(int64) error { return nil }
func (noAlloc) Free(int64)        {}
