package jsbridge

import (
	"math"
	"unsafe"

	lib "modernc.org/libquickjs"
)

// Tag is the engine type tag of a value. Negative tags carry a reference
// counted heap pointer; non-negative tags are immediates.
type Tag int32

// Tags the bridge inspects. The numbering is owned by the engine build and
// is taken from libquickjs rather than hard-coded.
const (
	TagObject        Tag = Tag(lib.EJS_TAG_OBJECT)
	TagString        Tag = Tag(lib.EJS_TAG_STRING)
	TagSymbol        Tag = Tag(lib.EJS_TAG_SYMBOL)
	TagModule        Tag = Tag(lib.EJS_TAG_MODULE)
	TagInt           Tag = Tag(lib.EJS_TAG_INT)
	TagBool          Tag = Tag(lib.EJS_TAG_BOOL)
	TagNull          Tag = Tag(lib.EJS_TAG_NULL)
	TagUndefined     Tag = Tag(lib.EJS_TAG_UNDEFINED)
	TagException     Tag = Tag(lib.EJS_TAG_EXCEPTION)
	TagUninitialized Tag = Tag(lib.EJS_TAG_UNINITIALIZED)
	TagFloat64       Tag = Tag(lib.EJS_TAG_FLOAT64)
)

// TagIsFloat64 reports whether tag denotes a double. Without NaN boxing the
// engine reserves a single tag for doubles.
func TagIsFloat64(tag Tag) bool {
	return tag == TagFloat64
}

// sizeOfValue is sizeof(JSValue) for the linked engine.
const sizeOfValue = unsafe.Sizeof(lib.TJSValue{})

// SizeOfValue returns the size in bytes of one engine value, the stride of
// argument vectors built with ValueList.
func SizeOfValue() int {
	return int(sizeOfValue)
}

// The helpers below mirror the JS_MKVAL / JS_VALUE_GET_* macros and the
// static inline constructors of quickjs.h, which have no exported symbol.

func rawTag(v lib.TJSValue) Tag {
	return Tag(v.Ftag)
}

func rawPtr(v lib.TJSValue) uintptr {
	return *(*uintptr)(unsafe.Pointer(&v.Fu))
}

func rawInt32(v lib.TJSValue) int32 {
	return *(*int32)(unsafe.Pointer(&v.Fu))
}

func rawFloat64(v lib.TJSValue) float64 {
	return *(*float64)(unsafe.Pointer(&v.Fu))
}

func mkval(tag Tag, val int32) lib.TJSValue {
	var v lib.TJSValue
	v.Ftag = int64(tag)
	*(*int32)(unsafe.Pointer(&v.Fu)) = val
	return v
}

func mkfloat64(d float64) lib.TJSValue {
	var v lib.TJSValue
	v.Ftag = int64(TagFloat64)
	*(*float64)(unsafe.Pointer(&v.Fu)) = d
	return v
}

var (
	rawUndefined = mkval(TagUndefined, 0)
	rawNull      = mkval(TagNull, 0)
	rawException = mkval(TagException, 0)
)

func rawBool(b bool) lib.TJSValue {
	if b {
		return mkval(TagBool, 1)
	}
	return mkval(TagBool, 0)
}

// rawNumber follows JS_NewFloat64: integral doubles in int32 range, other
// than -0, become INT immediates.
func rawNumber(d float64) lib.TJSValue {
	if d >= math.MinInt32 && d <= math.MaxInt32 {
		i := int32(d)
		if float64(i) == d && !(d == 0 && math.Signbit(d)) {
			return mkval(TagInt, i)
		}
	}
	return mkfloat64(d)
}

func rawInt64(n int64) lib.TJSValue {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return mkval(TagInt, int32(n))
	}
	return mkfloat64(float64(n))
}

func hasRefCount(v lib.TJSValue) bool {
	return rawTag(v) < 0
}

// refCount returns the JSRefCountHeader count of a heap value, or 0 for an
// immediate.
func refCount(v lib.TJSValue) int32 {
	if !hasRefCount(v) {
		return 0
	}
	return *(*int32)(unsafe.Pointer(rawPtr(v)))
}
