// Package object models the document-model values used as store keys.
//
// Two kinds of keys exist:
//
//   - Indirect references (Ref): a (number, generation) pair naming an object
//     in a document. The store indexes these in a hash table.
//   - Opaque values (Name, Int, Array): anything else comparable by structure.
//     The store finds these by a linear scan.
//
// The store takes an ownership stake in every key it holds (Keep on admission,
// Drop on eviction or removal). Primitive values ignore ownership; Ref tracks
// it so callers can observe when the store has let go of a reference.
package object

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Object is the key contract the store relies on.
type Object interface {
	// Indirect reports the reference number and generation if the object is
	// an indirect reference.
	Indirect() (num, gen int, ok bool)
	// Equal reports structural equality.
	Equal(other Object) bool
	// Keep acquires an ownership stake and returns the object.
	Keep() Object
	// Drop releases a stake acquired with Keep.
	Drop()
	String() string
}

// Ref is an indirect reference "num gen R".
// Create it with NewRef; the creator holds one ownership stake.
type Ref struct {
	num, gen int
	owners   atomic.Int32
}

// NewRef returns an indirect reference owned once by the caller.
func NewRef(num, gen int) *Ref {
	r := &Ref{num: num, gen: gen}
	r.owners.Store(1)
	return r
}

// Num returns the object number.
func (r *Ref) Num() int { return r.num }

// Gen returns the generation number.
func (r *Ref) Gen() int { return r.gen }

// Owners returns the number of outstanding ownership stakes.
func (r *Ref) Owners() int { return int(r.owners.Load()) }

func (r *Ref) Indirect() (int, int, bool) { return r.num, r.gen, true }

// Equal compares references by (num, gen), not by identity.
func (r *Ref) Equal(other Object) bool {
	o, ok := other.(*Ref)
	return ok && o.num == r.num && o.gen == r.gen
}

func (r *Ref) Keep() Object {
	r.owners.Add(1)
	return r
}

func (r *Ref) Drop() {
	if r.owners.Add(-1) < 0 {
		panic("object: Ref dropped more times than kept")
	}
}

func (r *Ref) String() string {
	return strconv.Itoa(r.num) + " " + strconv.Itoa(r.gen) + " R"
}

// Name is a name object such as /DeviceRGB.
type Name string

func (n Name) Indirect() (int, int, bool) { return 0, 0, false }

func (n Name) Equal(other Object) bool {
	o, ok := other.(Name)
	return ok && o == n
}

func (n Name) Keep() Object   { return n }
func (n Name) Drop()          {}
func (n Name) String() string { return "/" + string(n) }

// Int is an integer object.
type Int int

func (i Int) Indirect() (int, int, bool) { return 0, 0, false }

func (i Int) Equal(other Object) bool {
	o, ok := other.(Int)
	return ok && o == i
}

func (i Int) Keep() Object   { return i }
func (i Int) Drop()          {}
func (i Int) String() string { return strconv.Itoa(int(i)) }

// Array is an ordered sequence of objects. It is compared element-wise.
// Keep and Drop propagate to the elements.
type Array []Object

func (a Array) Indirect() (int, int, bool) { return 0, 0, false }

func (a Array) Equal(other Object) bool {
	o, ok := other.(Array)
	if !ok || len(o) != len(a) {
		return false
	}
	for i := range a {
		if !Equal(a[i], o[i]) {
			return false
		}
	}
	return true
}

func (a Array) Keep() Object {
	for _, x := range a {
		if x != nil {
			x.Keep()
		}
	}
	return a
}

func (a Array) Drop() {
	for _, x := range a {
		if x != nil {
			x.Drop()
		}
	}
}

func (a Array) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range a {
		if i > 0 {
			b.WriteByte(' ')
		}
		if x == nil {
			b.WriteString("null")
		} else {
			b.WriteString(x.String())
		}
	}
	b.WriteByte(']')
	return b.String()
}

// Equal compares two possibly-nil objects.
func Equal(a, b Object) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// IsIndirect reports whether o is a non-nil indirect reference.
func IsIndirect(o Object) bool {
	if o == nil {
		return false
	}
	_, _, ok := o.Indirect()
	return ok
}

// Compile-time interface checks.
var (
	_ Object = (*Ref)(nil)
	_ Object = Name("")
	_ Object = Int(0)
	_ Object = Array(nil)
)
