package jsbridge

import (
	lib "modernc.org/libquickjs"
)

// ValueList is a contiguous, engine-allocated vector of values laid out the
// way the engine expects an argument vector. The slots hold borrowed
// values: the list never changes reference counts.
type ValueList struct {
	ctx *Context
	ptr uintptr
	n   int
}

// NewValueList allocates a zeroed vector of n values in ctx's heap.
// It panics if the engine cannot allocate it.
func NewValueList(ctx *Context, n int) *ValueList {
	l := &ValueList{ctx: ctx, n: n}
	if n == 0 {
		return l
	}
	l.ptr = lib.Xjs_mallocz(ctx.rt.tls, ctx.ptr(), lib.Tsize_t(n)*lib.Tsize_t(sizeOfValue))
	if l.ptr == 0 {
		panic("jsbridge: out of memory allocating value list")
	}
	for i := 0; i < n; i++ {
		*l.slot(i) = rawUndefined
	}
	return l
}

func (l *ValueList) slot(i int) *lib.TJSValue {
	if i < 0 || i >= l.n {
		panic("jsbridge: value list index out of range")
	}
	return (*lib.TJSValue)(ptrOf(l.ptr + uintptr(i)*sizeOfValue))
}

// Set stores the value held by v in slot i (SetValueInList).
func (l *ValueList) Set(i int, v *Value) {
	*l.slot(i) = v.raw()
}

// At boxes the value in slot i without taking a reference.
func (l *ValueList) At(i int) *Value {
	return borrow(*l.slot(i))
}

// Len returns the number of slots.
func (l *ValueList) Len() int { return l.n }

// Ptr returns the address of the first slot, suitable as argv.
func (l *ValueList) Ptr() uintptr { return l.ptr }

// Free releases the vector. The values in it are not freed.
func (l *ValueList) Free() {
	if l.ptr != 0 {
		lib.Xjs_free(l.ctx.rt.tls, l.ctx.ptr(), l.ptr)
		l.ptr = 0
	}
	l.n = 0
}
