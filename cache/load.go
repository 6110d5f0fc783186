package cache

import (
	"context"

	"github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/resstore/object"
)

// ErrNoLoader is returned by GetOrLoad when load is nil.
var ErrNoLoader = errors.New(errors.CodeInvalidInput, "cache: no loader provided")

// GetOrLoad returns the value cached under key, or builds it with load and
// caches it under the declared size it reports. The caller owns one
// reference to the returned value and must Drop it.
//
// Concurrent loads of the same indirect key are coalesced: load runs once and
// every waiting caller receives its own reference. Opaque keys are not
// coalesced. A nil key loads without caching.
//
// Loader failures are wrapped with errors.CodeExecutionFailed and never
// cached. A caller whose ctx ends while waiting for another caller's load
// returns ctx.Err().
func GetOrLoad[T Storable](ctx context.Context, s *Store, key object.Object, load func(context.Context) (T, uint64, error)) (T, error) {
	var zero T
	if v, ok := Find[T](s, key); ok {
		return v, nil
	}
	if load == nil {
		return zero, ErrNoLoader
	}

	fill := func() (T, error) {
		v, size, err := load(ctx)
		if err != nil {
			return zero, errors.Wrap(err, errors.CodeExecutionFailed, "cache: load "+describe(key))
		}
		if key != nil {
			s.Insert(key, v, size)
		}
		return v, nil
	}

	num, gen, ok := indirect(key)
	if !ok {
		return fill()
	}

	rk := refKey{num: num, gen: gen, kind: KindFor[T]()}
	v, err := s.flights.Do(ctx, rk, func() (Storable, error) {
		// Another caller may have finished the same load just before us.
		if v, ok := Find[T](s, key); ok {
			return v, nil
		}
		return fill()
	}, func(v Storable) { s.Keep(v) })
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func indirect(key object.Object) (num, gen int, ok bool) {
	if key == nil {
		return 0, 0, false
	}
	return key.Indirect()
}

func describe(key object.Object) string {
	if key == nil {
		return "<uncached>"
	}
	return key.String()
}
