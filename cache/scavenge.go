package cache

import (
	"math/bits"

	"github.com/IvanBrykalov/resstore/alloc"
)

// MaxScavengePhase is the last, most aggressive scavenging phase. At this
// phase the ceiling is zero: everything evictable may go.
const MaxScavengePhase = 16

// Scavenge tries to release memory so an allocation of size bytes can
// succeed. It is called by an allocator retry loop which keeps *phase across
// calls for one allocation, starting at zero. A negative phase counts as zero.
//
// Each phase computes a ceiling for the store's footprint, tightening as the
// phase grows: max*(16-p)/16 for a bounded store, size*(15-p)/(16-p) for an
// unbounded one (there is no fixed cap to shrink towards). Phases whose
// ceiling already leaves room are skipped. The first phase that evicts at
// least one byte reports success. After the last phase Scavenge reports false
// and the allocation should fail.
func (s *Store) Scavenge(size uint64, phase *int) bool {
	if phase == nil || s.closed.Load() {
		return false
	}
	if *phase < 0 {
		*phase = 0
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	for *phase <= MaxScavengePhase {
		p := *phase
		ceiling := s.phaseCeilingLocked(p)
		*phase = p + 1

		tofree := subSat(addSat(size, s.size), ceiling)
		if tofree == 0 {
			continue
		}
		if freed := s.sweepLocked(tofree, EvictPressure); freed > 0 {
			s.scavenges.Add(1)
			s.opt.Metrics.Scavenge(p, freed)
			s.log.Debug("store: scavenged", "phase", p, "requested", size, "freed", freed)
			return true
		}
	}

	s.log.Debug("store: scavenge exhausted", "requested", size, "size", s.size)
	return false
}

// phaseCeilingLocked returns the footprint allowed at phase p.
func (s *Store) phaseCeilingLocked(p int) uint64 {
	if p >= MaxScavengePhase {
		return 0
	}
	if s.max != Unlimited {
		return mulDiv(s.max, uint64(MaxScavengePhase-p), MaxScavengePhase)
	}
	return mulDiv(s.size, uint64(MaxScavengePhase-1-p), uint64(MaxScavengePhase-p))
}

// mulDiv returns a*num/den without intermediate overflow. num <= den.
func mulDiv(a, num, den uint64) uint64 {
	hi, lo := bits.Mul64(a, num)
	q, _ := bits.Div64(hi, lo, den)
	return q
}

var _ alloc.Scavenger = (*Store)(nil)
