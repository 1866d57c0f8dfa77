package jsbridge

import (
	lib "modernc.org/libquickjs"
)

// Value is a boxed handle to exactly one engine value. The box and the
// engine reference it holds are owned separately: FreeValue drops the
// reference (and optionally the box), Release drops only the box.
//
// A handle must not be used after it has been released; doing so panics.
type Value struct {
	v        lib.TJSValue
	released bool
	borrowed bool // payload of a channel call, valid only for its duration
}

// box moves raw into a freshly allocated handle. No reference count
// changes happen here.
func box(raw lib.TJSValue) *Value {
	return &Value{v: raw}
}

func borrow(raw lib.TJSValue) *Value {
	return &Value{v: raw, borrowed: true}
}

// raw unboxes v by reference. A nil handle unboxes to undefined.
func (v *Value) raw() lib.TJSValue {
	if v == nil {
		return rawUndefined
	}
	if v.released {
		panic("jsbridge: use of released value handle")
	}
	return v.v
}

// Release frees the box without touching the engine reference count.
// Callers that also own the reference must free it first, or use
// FreeValue with alsoFreeBox set.
func (v *Value) Release() {
	if v.released {
		panic("jsbridge: value handle released twice")
	}
	v.released = true
	v.v = rawUndefined
}

// Released reports whether the box has been released.
func (v *Value) Released() bool {
	return v.released
}

// Tag returns the engine type tag (JS_VALUE_GET_TAG).
func (v *Value) Tag() Tag {
	return rawTag(v.raw())
}

// Ptr returns the heap pointer payload (JS_VALUE_GET_PTR). It is only
// meaningful for negative tags.
func (v *Value) Ptr() uintptr {
	return rawPtr(v.raw())
}

// IsException reports whether v is the exception sentinel. It inspects the
// tag only and never allocates.
func (v *Value) IsException() bool {
	return v.Tag() == TagException
}

func (v *Value) IsUndefined() bool { return v.Tag() == TagUndefined }
func (v *Value) IsNull() bool      { return v.Tag() == TagNull }

// Free drops the engine reference and releases the box.
func (v *Value) Free(ctx *Context) {
	ctx.FreeValue(v, true)
}

// FreeValue drops the engine reference held by v. When alsoFreeBox is false
// the box stays allocated and still reports the (now unowned) value.
func (c *Context) FreeValue(v *Value, alsoFreeBox bool) {
	lib.XFreeValue(c.rt.tls, c.ptr(), v.raw())
	if alsoFreeBox {
		v.Release()
	}
	c.rt.flushIfIdle()
}

// FreeValueRT is FreeValue for callers holding only the runtime, such as a
// FREE_OBJECT handler whose context may already be gone. Values of any
// context of r may be freed this way.
func (r *Runtime) FreeValueRT(v *Value, alsoFreeBox bool) {
	if r.closed {
		panic("jsbridge: use of freed runtime")
	}
	lib.XFreeValue(r.tls, r.raw, v.raw())
	if alsoFreeBox {
		v.Release()
	}
	r.flushIfIdle()
}

// DupValue boxes a new reference to the value held by v.
func (c *Context) DupValue(v *Value) *Value {
	return box(lib.XDupValue(c.rt.tls, c.ptr(), v.raw()))
}

// DupValueRT is DupValue without a context.
func (r *Runtime) DupValueRT(v *Value) *Value {
	if r.closed {
		panic("jsbridge: use of freed runtime")
	}
	return box(lib.XDupValue(r.tls, r.raw, v.raw()))
}
