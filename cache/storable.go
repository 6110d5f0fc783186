package cache

import "reflect"

// Storable is a reference-counted value the store can hold.
//
// Implementations embed Refs and initialize it with Counted (the creator
// holds the first reference) or Static (immortal, never finalized):
//
//	type Font struct {
//	    cache.Refs
//	    face *sfnt.Font
//	}
//
//	f := &Font{Refs: cache.Counted(), face: face}
//
// Reference counts are mutated only under the store's allocation lock, via
// Store.Keep and Store.Drop.
type Storable interface {
	// Finalize releases the value. It runs exactly once, when the last
	// reference is dropped, and never while the allocation lock is held, so it
	// may call back into the store.
	Finalize()

	refCount() *Refs
}

// Refs is the reference count embedded in every Storable. It is either a
// positive count or the static tag. The zero value is a dead object whose
// last reference was already dropped: keeping it is a no-op.
type Refs struct {
	n      int
	static bool
}

// Counted returns a count holding one reference.
func Counted() Refs { return Refs{n: 1} }

// Static returns the tag for immortal objects: keep and drop do nothing and
// Finalize is never called.
func Static() Refs { return Refs{static: true} }

func (r *Refs) refCount() *Refs { return r }

// ---- lock-held helpers ----

// keepLocked adds a reference to a live counted object.
func keepLocked(v Storable) {
	r := v.refCount()
	if !r.static && r.n > 0 {
		r.n++
	}
}

// dropLocked removes a reference and reports whether it was the last one.
func dropLocked(v Storable) bool {
	r := v.refCount()
	if r.static || r.n <= 0 {
		return false
	}
	r.n--
	return r.n == 0
}

// evictableLocked reports whether the store's own reference is the only one.
func evictableLocked(v Storable) bool {
	r := v.refCount()
	return !r.static && r.n == 1
}

// pinLocked takes a temporary reference on a counted object. Static objects
// cannot be pinned (and need not be: they are never finalized).
func pinLocked(v Storable) bool {
	r := v.refCount()
	if r.static || r.n <= 0 {
		return false
	}
	r.n++
	return true
}

// Kind is the destructor identity of a storable: its dynamic Go type. It is
// part of every indirect index key, so different products derived from the
// same document reference (a decoded image and a parsed content stream of
// object 7, say) never collide, and it filters opaque-key scans.
type Kind struct{ t reflect.Type }

// KindOf returns the kind of v.
func KindOf(v Storable) Kind { return Kind{t: reflect.TypeOf(v)} }

// KindFor returns the kind of values of type T. T must be the concrete type
// stored (e.g. *Font), not an interface.
func KindFor[T Storable]() Kind { return Kind{t: reflect.TypeFor[T]()} }

func (k Kind) String() string {
	if k.t == nil {
		return "<nil>"
	}
	return k.t.String()
}
