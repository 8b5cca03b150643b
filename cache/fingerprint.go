package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// =============================================================================
// KEY FINGERPRINT - Deterministic cache keys from named parameters
// =============================================================================

// Params are the named arguments of a cached computation.
type Params map[string]any

// Separator joins a namespace to its digest. Keys of one namespace share
// the prefix namespace+Separator, which is what invalidation deletes by.
const Separator = ":"

// Derive returns the cache key of params under namespace. The same namespace
// and the same key/value pairs always give the same key, whatever the map
// iteration order.
func Derive(namespace string, params Params) string {
	return DeriveFunc(namespace, "", params)
}

// DeriveFunc is Derive with a function identity mixed into the digest, so
// two memoized functions sharing a namespace never collide.
func DeriveFunc(namespace, function string, params Params) string {
	return namespace + Separator + Digest(namespace, function, params)
}

// NamespacePrefix is the prefix shared by every key derived under namespace.
func NamespacePrefix(namespace string) string {
	return namespace + Separator
}

// Digest is the 128-bit xxh3 of the canonical parameter encoding, as 32 hex
// characters.
func Digest(namespace, function string, params Params) string {
	h := xxh3.HashString128(canonical(namespace, function, params))
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// canonical encodes every component length-prefixed, with parameter names
// sorted, so that no two distinct inputs share an encoding.
func canonical(namespace, function string, params Params) string {
	var b strings.Builder
	writeField(&b, namespace)
	writeField(&b, function)

	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		writeField(&b, k)
		writeField(&b, encodeValue(params[k]))
	}
	return b.String()
}

func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte('#')
	b.WriteString(s)
}

// encodeValue renders a scalar with a one-letter type tag. Named types
// (FarmID, TimePoint, decimal.Decimal) encode by their underlying kind or
// their String method.
func encodeValue(v any) string {
	if v == nil {
		return "n:"
	}
	switch x := v.(type) {
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "n:"
		}
		return "S:" + x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "n:"
		}
		return encodeValue(rv.Elem().Interface())
	case reflect.String:
		return "s:" + rv.String()
	case reflect.Bool:
		return "b:" + strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "i:" + strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "u:" + strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return "f:" + strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = encodeValue(rv.Index(i).Interface())
		}
		var b strings.Builder
		for _, p := range parts {
			writeField(&b, p)
		}
		return "l:" + b.String()
	}
	// fmt prints maps with sorted keys, so this stays deterministic.
	return "x:" + fmt.Sprintf("%T=%v", v, v)
}
