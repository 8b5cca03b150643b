package cache

import (
	"context"
	"reflect"
	"runtime"
	"time"

	"golang.org/x/sync/singleflight"
)

// =============================================================================
// MEMOIZER - Transparent caching of a deterministic computation
// =============================================================================

// Func is a computation keyed by its named parameters. It must be pure: the
// memoizer returns a cached result instead of calling it again, so any side
// effect the caller depends on is lost on a hit.
type Func[R any] func(ctx context.Context, params Params) (R, error)

// Memoizer wraps a Func with a Store. Errors are returned and never cached.
type Memoizer[R any] struct {
	store    *Store
	fn       Func[R]
	ttl      time.Duration
	prefix   string
	identity string
	flight   *singleflight.Group
}

// NewMemoizer wraps fn. Results are stored under keyPrefix for ttl. The
// function identity mixed into keys defaults to fn's symbol name.
func NewMemoizer[R any](store *Store, fn Func[R], ttl time.Duration, keyPrefix string) *Memoizer[R] {
	return &Memoizer[R]{
		store:    store,
		fn:       fn,
		ttl:      ttl,
		prefix:   keyPrefix,
		identity: funcName(fn),
	}
}

// Wrap is the one-line form of NewMemoizer(...).Call.
func Wrap[R any](store *Store, fn Func[R], ttl time.Duration, keyPrefix string) Func[R] {
	return NewMemoizer(store, fn, ttl, keyPrefix).Call
}

// Named overrides the function identity. Closures get compiler-generated
// names (func1, func2...) that move when code moves; a stable name keeps
// keys stable.
func (m *Memoizer[R]) Named(identity string) *Memoizer[R] {
	m.identity = identity
	return m
}

// WithSingleFlight makes concurrent misses on one key share a single call of
// fn. Without it, simultaneous misses each compute and the last write wins.
func (m *Memoizer[R]) WithSingleFlight() *Memoizer[R] {
	m.flight = &singleflight.Group{}
	return m
}

// Key is the cache key Call uses for params.
func (m *Memoizer[R]) Key(params Params) string {
	return DeriveFunc(m.prefix, m.identity, params)
}

// Call returns the cached result for params, computing and storing it on a
// miss. A cached value of an unexpected type counts as a miss.
func (m *Memoizer[R]) Call(ctx context.Context, params Params) (R, error) {
	key := m.Key(params)
	if v, ok := m.store.Get(key); ok {
		if r, ok := v.(R); ok {
			return r, nil
		}
	}

	if m.flight == nil {
		return m.compute(ctx, key, params)
	}
	v, err, _ := m.flight.Do(key, func() (any, error) {
		return m.compute(context.WithoutCancel(ctx), key, params)
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return v.(R), nil
}

func (m *Memoizer[R]) compute(ctx context.Context, key string, params Params) (R, error) {
	r, err := m.fn(ctx, params)
	if err != nil {
		return r, err
	}
	m.store.Set(key, r, m.ttl)
	return r, nil
}

func funcName(fn any) string {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(rv.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}
