package cache

import (
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/resstore/object"
)

// blob is a counted test storable that records finalization.
type blob struct {
	Refs
	name      string
	finalized atomic.Int32
}

func newBlob(name string) *blob { return &blob{Refs: Counted(), name: name} }

func (b *blob) Finalize() { b.finalized.Add(1) }

// image is a second kind, so the same reference can key two products.
type image struct {
	Refs
	w, h      int
	finalized atomic.Int32
}

func newImage(w, h int) *image { return &image{Refs: Counted(), w: w, h: h} }

func (m *image) Finalize() { m.finalized.Add(1) }

// glyph is a static storable: never finalized.
type glyph struct {
	Refs
	r rune
}

func (g *glyph) Finalize() { panic("static storable finalized") }

var blobKind = KindFor[*blob]()

func ref(num int) object.Object { return object.NewRef(num, 0) }

// newTestStore returns a store closed at cleanup.
func newTestStore(t testing.TB, opt Options) *Store {
	t.Helper()
	s := New(opt)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// insertDrop caches v and releases the caller's reference, leaving the store
// as the only owner.
func insertDrop(s *Store, key object.Object, v Storable, size uint64) {
	s.Insert(key, v, size)
	s.Drop(v)
}

func refsOf(t testing.TB, s *Store, v Storable) int {
	t.Helper()
	n, _ := s.RefCount(v)
	return n
}
