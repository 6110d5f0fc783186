package alloc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrOutOfMemory is returned by Alloc when the budget cannot satisfy a request
// even after every scavenging phase has been tried.
var ErrOutOfMemory = errors.New("alloc: out of memory")

// Scavenger releases memory on demand. Scavenge is called with the number of
// bytes the failed request needs and a phase counter owned by the caller's
// retry loop; it advances the counter and reports whether anything was freed.
// *cache.Store implements Scavenger.
type Scavenger interface {
	Scavenge(size uint64, phase *int) bool
}

// Config holds budget limits.
type Config struct {
	// LimitBytes is the hard limit for managed memory.
	// If 0, no limit is enforced (only tracking).
	LimitBytes int64

	// Logger receives debug diagnostics about scavenging. Nil discards.
	Logger *slog.Logger
}

// Budget is a process-wide memory budget. Allocations that do not fit ask the
// registered Scavenger to release memory, phase by phase, before failing.
//
// All methods are safe for concurrent use. A nil *Budget is valid and behaves
// as an unlimited allocator that tracks nothing.
type Budget struct {
	cfg Config
	log *slog.Logger

	sem  *semaphore.Weighted // nil if unlimited
	used atomic.Int64

	scav      atomic.Pointer[scavengerRef]
	scavenged atomic.Int64 // successful scavenge calls
}

type scavengerRef struct{ s Scavenger }

// NewBudget creates a memory budget.
func NewBudget(cfg Config) *Budget {
	b := &Budget{cfg: cfg, log: cfg.Logger}
	if b.log == nil {
		b.log = slog.New(slog.DiscardHandler)
	}
	if cfg.LimitBytes > 0 {
		b.sem = semaphore.NewWeighted(cfg.LimitBytes)
	}
	return b
}

// SetScavenger registers the scavenger consulted when an allocation fails.
// Pass nil to unregister.
func (b *Budget) SetScavenger(s Scavenger) {
	if b == nil {
		return
	}
	if s == nil {
		b.scav.Store(nil)
		return
	}
	b.scav.Store(&scavengerRef{s: s})
}

// Alloc reserves n bytes. When the limit would be exceeded it runs the
// scavenger with a fresh phase counter, retrying after every successful
// scavenge, and returns ErrOutOfMemory once scavenging can free nothing more.
func (b *Budget) Alloc(n int64) error {
	if b == nil || n <= 0 {
		return nil
	}
	if b.sem == nil {
		b.used.Add(n)
		return nil
	}

	phase := 0
	for {
		if b.sem.TryAcquire(n) {
			b.used.Add(n)
			return nil
		}
		ref := b.scav.Load()
		if ref == nil {
			return fmt.Errorf("%w: %d bytes (no scavenger)", ErrOutOfMemory, n)
		}
		if !ref.s.Scavenge(uint64(n), &phase) {
			b.log.Debug("alloc: scavenging exhausted",
				"request", n, "used", b.used.Load(), "limit", b.cfg.LimitBytes, "phase", phase)
			return fmt.Errorf("%w: %d bytes", ErrOutOfMemory, n)
		}
		b.scavenged.Add(1)
		b.log.Debug("alloc: scavenged, retrying",
			"request", n, "used", b.used.Load(), "phase", phase)
	}
}

// TryAlloc reserves n bytes without scavenging.
func (b *Budget) TryAlloc(n int64) error {
	if b == nil || n <= 0 {
		return nil
	}
	if b.sem != nil && !b.sem.TryAcquire(n) {
		return fmt.Errorf("%w: %d bytes", ErrOutOfMemory, n)
	}
	b.used.Add(n)
	return nil
}

// Free releases n bytes previously reserved with Alloc or TryAlloc.
func (b *Budget) Free(n int64) {
	if b == nil || n <= 0 {
		return
	}
	if b.sem != nil {
		b.sem.Release(n)
	}
	b.used.Add(-n)
}

// Usage returns the number of bytes currently reserved.
func (b *Budget) Usage() int64 {
	if b == nil {
		return 0
	}
	return b.used.Load()
}

// Limit returns the configured limit in bytes (0 if unlimited).
func (b *Budget) Limit() int64 {
	if b == nil {
		return 0
	}
	return b.cfg.LimitBytes
}

// Scavenges returns how many scavenger calls released memory.
func (b *Budget) Scavenges() int64 {
	if b == nil {
		return 0
	}
	return b.scavenged.Load()
}
