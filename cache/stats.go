package cache

import (
	"fmt"
	"io"
)

// Stats is a point-in-time view of store counters.
type Stats struct {
	Entries   int
	Size      uint64
	MaxSize   uint64
	Hits      uint64
	Misses    uint64
	Evictions [numEvictReasons]uint64 // indexed by EvictReason
	Scavenges uint64                  // scavenge calls that freed memory
	Rejected  uint64                  // inserts that were not cached
}

// HitRate returns Hits / (Hits + Misses), or 0 before any lookup.
func (st Stats) HitRate() float64 {
	total := st.Hits + st.Misses
	if total == 0 {
		return 0
	}
	return float64(st.Hits) / float64(total)
}

// Evicted returns the total number of evictions for all reasons.
func (st Stats) Evicted() uint64 {
	var n uint64
	for _, v := range st.Evictions {
		n += v
	}
	return n
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	s.lock.Lock()
	st := Stats{Entries: s.n, Size: s.size, MaxSize: s.max}
	s.lock.Unlock()

	st.Hits = s.hits.Load()
	st.Misses = s.misses.Load()
	st.Scavenges = s.scavenges.Load()
	st.Rejected = s.rejected.Load()
	for i := range s.evicts {
		st.Evictions[i] = s.evicts[i].Load()
	}
	return st
}

// EntryInfo describes one cached entry.
type EntryInfo struct {
	Key    string
	Kind   Kind
	Refs   int
	Static bool
	Size   uint64
}

// Snapshot lists cached entries from most to least recently used.
func (s *Store) Snapshot() []EntryInfo {
	s.lock.Lock()
	defer s.lock.Unlock()

	out := make([]EntryInfo, 0, s.n)
	for e := s.head; e != nil; e = e.next {
		r := e.val.refCount()
		out = append(out, EntryInfo{
			Key:    e.key.String(),
			Kind:   e.kind,
			Refs:   r.n,
			Static: r.static,
			Size:   e.size,
		})
	}
	return out
}

// Dump writes a human-readable listing of the store to w, MRU first.
func (s *Store) Dump(w io.Writer) error {
	st := s.Stats()
	if _, err := fmt.Fprintf(w, "-- resource store contents (%d entries, %d/%s bytes) --\n",
		st.Entries, st.Size, maxString(st.MaxSize)); err != nil {
		return err
	}
	for _, ei := range s.Snapshot() {
		refs := fmt.Sprint(ei.Refs)
		if ei.Static {
			refs = "static"
		}
		if _, err := fmt.Fprintf(w, "store[*][refs=%s][size=%d] key=%s kind=%s\n",
			refs, ei.Size, ei.Key, ei.Kind); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "-- end --")
	return err
}

func maxString(m uint64) string {
	if m == Unlimited {
		return "unlimited"
	}
	return fmt.Sprint(m)
}
