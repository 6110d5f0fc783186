package cache

import (
	"sync"
	"testing"

	"github.com/IvanBrykalov/resstore/alloc"
	"github.com/IvanBrykalov/resstore/object"
)

func fill(s *Store, n int, size uint64) []*blob {
	out := make([]*blob, n)
	for i := range out {
		out[i] = newBlob("b")
		insertDrop(s, ref(i), out[i], size)
	}
	return out
}

// With nothing evictable every phase is tried and the call fails.
func TestScavenge_NothingEvictable(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	v := newBlob("held")
	s.Insert(ref(1), v, 100)
	defer s.Drop(v)

	phase := 0
	if s.Scavenge(10, &phase) {
		t.Fatal("scavenge must fail")
	}
	if phase != MaxScavengePhase+1 {
		t.Fatalf("all phases must be consumed, phase=%d", phase)
	}
	if s.Len() != 1 {
		t.Fatal("held entry must survive")
	}
	if s.Scavenge(10, &phase) {
		t.Fatal("an exhausted phase counter must fail immediately")
	}
	if s.Scavenge(10, nil) {
		t.Fatal("nil phase must fail")
	}
}

// An unbounded store releases at least the requested amount.
func TestScavenge_FreesAtLeastRequested(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	fill(s, 10, 100)

	before := s.Size()
	phase := 0
	if !s.Scavenge(250, &phase) {
		t.Fatal("scavenge must succeed")
	}
	if freed := before - s.Size(); freed < 250 {
		t.Fatalf("want at least 250 freed, got %d", freed)
	}
	if phase != 1 {
		t.Fatalf("first phase must suffice, phase=%d", phase)
	}
	if st := s.Stats(); st.Scavenges != 1 || st.Evictions[EvictPressure] == 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

// Under mild pressure a bounded store skips phases that leave room and
// evicts only the least recently used entry.
func TestScavenge_BoundedIsGraduated(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{MaxSize: 1000})
	bs := fill(s, 5, 100)

	phase := 0
	if !s.Scavenge(100, &phase) {
		t.Fatal("scavenge must succeed")
	}
	// Ceilings 1000..625 leave room for 600 bytes; 562 at phase 7 does not.
	if phase != 8 {
		t.Fatalf("want phase 8, got %d", phase)
	}
	if s.Size() != 400 {
		t.Fatalf("want one entry evicted, size=%d", s.Size())
	}
	if bs[0].finalized.Load() != 1 {
		t.Fatal("LRU entry must be evicted")
	}
	for _, b := range bs[1:] {
		if b.finalized.Load() != 0 {
			t.Fatal("only the LRU entry may be evicted")
		}
	}
}

// Held entries are skipped; evictable ones behind them still go.
func TestScavenge_SkipsHeld(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	held := newBlob("held")
	s.Insert(ref(1), held, 100) // LRU, still referenced
	defer s.Drop(held)
	free := newBlob("free")
	insertDrop(s, ref(2), free, 100)

	phase := 0
	if !s.Scavenge(50, &phase) {
		t.Fatal("scavenge must succeed")
	}
	if held.finalized.Load() != 0 || free.finalized.Load() != 1 {
		t.Fatal("only the unreferenced entry may be evicted")
	}
}

// The last phase empties the evictable set.
func TestScavenge_LastPhaseEvictsAll(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{MaxSize: 1000})
	fill(s, 4, 10)

	phase := MaxScavengePhase
	if !s.Scavenge(^uint64(0), &phase) {
		t.Fatal("scavenge must succeed")
	}
	if s.Len() != 0 || s.Size() != 0 {
		t.Fatalf("store must be empty, got %d / %d", s.Len(), s.Size())
	}
}

// A negative phase counter starts at phase zero.
func TestScavenge_NegativePhase(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{MaxSize: 1 << 62})
	insertDrop(s, ref(1), newBlob("b"), 100)

	phase := -1000
	if !s.Scavenge(^uint64(0), &phase) {
		t.Fatal("scavenge must succeed")
	}
	if phase != 1 || s.Len() != 0 {
		t.Fatalf("want phase 1 and an empty store, got phase=%d len=%d", phase, s.Len())
	}
}

func TestScavenge_PhaseCeilings(t *testing.T) {
	t.Parallel()

	bounded := New(Options{MaxSize: 1600})
	unbounded := New(Options{})
	unbounded.lock.Lock()
	unbounded.size = 1600
	unbounded.lock.Unlock()

	tests := []struct {
		s     *Store
		phase int
		want  uint64
	}{
		{bounded, 0, 1600},
		{bounded, 8, 800},
		{bounded, 15, 100},
		{bounded, 16, 0},
		{unbounded, 0, 1500},
		{unbounded, 14, 800},
		{unbounded, 15, 0},
		{unbounded, 16, 0},
	}
	for _, tt := range tests {
		if got := tt.s.phaseCeilingLocked(tt.phase); got != tt.want {
			t.Fatalf("max=%d phase=%d: want %d, got %d", tt.s.max, tt.phase, tt.want, got)
		}
	}
}

func TestScavenge_Arithmetic(t *testing.T) {
	t.Parallel()

	const top = ^uint64(0)
	if got := mulDiv(top, 15, 16); got != top/16*15+15*(top%16)/16 {
		t.Fatalf("mulDiv overflowed: %d", got)
	}
	if got := mulDiv(top, 1, 1); got != top {
		t.Fatalf("mulDiv(top,1,1) = %d", got)
	}
	if addSat(top, 1) != top || addSat(2, 3) != 5 {
		t.Fatal("addSat must clamp")
	}
	if subSat(1, 2) != 0 || subSat(5, 3) != 2 {
		t.Fatal("subSat must stop at zero")
	}
}

// rec records scavenging metrics.
type rec struct {
	NoopMetrics
	mu     sync.Mutex
	phases []int
	freed  uint64
}

func (r *rec) Scavenge(phase int, freed uint64) {
	r.mu.Lock()
	r.phases = append(r.phases, phase)
	r.freed += freed
	r.mu.Unlock()
}

// pooled is a storable whose memory is reserved from a budget.
type pooled struct {
	Refs
	b *alloc.Budget
	n int64
}

func (p *pooled) Finalize() { p.b.Free(p.n) }

// A budget uses the store as its scavenger: an allocation that does not fit
// evicts cached values until it does.
func TestScavenge_BudgetIntegration(t *testing.T) {
	t.Parallel()

	b := alloc.NewBudget(alloc.Config{LimitBytes: 1000})
	m := &rec{}
	s := newTestStore(t, Options{Metrics: m})
	b.SetScavenger(s)

	for i := 0; i < 9; i++ {
		if err := b.Alloc(100); err != nil {
			t.Fatal(err)
		}
		insertDrop(s, object.NewRef(i, 0), &pooled{Refs: Counted(), b: b, n: 100}, 100)
	}
	if b.Usage() != 900 {
		t.Fatalf("usage want 900, got %d", b.Usage())
	}

	// 900 + 300 > 1000: phase 0 (ceiling 843) frees 4 entries.
	if err := b.Alloc(300); err != nil {
		t.Fatalf("alloc must succeed after scavenging: %v", err)
	}
	if s.Len() != 5 || b.Usage() != 800 {
		t.Fatalf("want 5 entries / 800 used, got %d / %d", s.Len(), b.Usage())
	}
	if b.Scavenges() != 1 {
		t.Fatalf("want one scavenge, got %d", b.Scavenges())
	}
	if len(m.phases) != 1 || m.phases[0] != 0 || m.freed != 400 {
		t.Fatalf("unexpected scavenge metrics: %v freed=%d", m.phases, m.freed)
	}
	b.Free(300)
}
