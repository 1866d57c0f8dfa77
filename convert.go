package jsbridge

import (
	"unsafe"

	lib "modernc.org/libquickjs"
)

// PromiseState is the settlement state of a promise.
type PromiseState int

const (
	NotAPromise PromiseState = iota - 1
	PromisePending
	PromiseFulfilled
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromisePending:
		return "pending"
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	}
	return "not a promise"
}

// ValueGetTag returns the type tag of v.
func ValueGetTag(v *Value) Tag { return v.Tag() }

// ValueGetPtr returns the heap pointer payload of v.
func ValueGetPtr(v *Value) uintptr { return v.Ptr() }

// ToBool applies ToBoolean. It returns -1 if the conversion threw.
func (c *Context) ToBool(v *Value) int {
	return int(lib.XJS_ToBool(c.rt.tls, c.ptr(), v.raw()))
}

// ToInt64 applies the engine's integer conversion. ok is false if it threw.
func (c *Context) ToInt64(v *Value) (n int64, ok bool) {
	tls := c.rt.tls
	p := tls.Alloc(8)
	defer tls.Free(8)
	if lib.XJS_ToInt64(tls, c.ptr(), p, v.raw()) < 0 {
		return 0, false
	}
	return *(*int64)(ptrOf(p)), true
}

// ToFloat64 applies ToNumber. ok is false if it threw.
func (c *Context) ToFloat64(v *Value) (d float64, ok bool) {
	tls := c.rt.tls
	p := tls.Alloc(8)
	defer tls.Free(8)
	if lib.XJS_ToFloat64(tls, c.ptr(), p, v.raw()) < 0 {
		return 0, false
	}
	return *(*float64)(ptrOf(p)), true
}

// ToCString converts v to a NUL-terminated UTF-8 string owned by the
// engine, returning its address and byte length. The conversion may run a
// user toString, so it is timed like Eval. A zero address means it threw.
// The string must be released with FreeCString.
func (c *Context) ToCString(v *Value) (ptr uintptr, n int) {
	r := c.rt
	r.enter()
	defer r.leave()

	plen := r.tls.Alloc(int(unsafe.Sizeof(lib.Tsize_t(0))))
	defer r.tls.Free(int(unsafe.Sizeof(lib.Tsize_t(0))))
	*(*lib.Tsize_t)(ptrOf(plen)) = 0
	ptr = lib.XJS_ToCStringLen2(r.tls, c.ptr(), plen, v.raw(), 0)
	if ptr == 0 {
		return 0, 0
	}
	return ptr, int(*(*lib.Tsize_t)(ptrOf(plen)))
}

// FreeCString releases a string returned by ToCString.
func (c *Context) FreeCString(ptr uintptr) {
	lib.XJS_FreeCString(c.rt.tls, c.ptr(), ptr)
}

// ToString converts v to a Go string. A throwing conversion is returned as
// the pending exception converted to *Error.
func (c *Context) ToString(v *Value) (string, error) {
	if c.closed {
		return "", ErrContextClosed
	}
	p, n := c.ToCString(v)
	if p == 0 {
		return "", c.ExceptionError()
	}
	defer c.FreeCString(p)
	return goStringN(p, n), nil
}

// GetArrayBuffer returns the backing store of an ArrayBuffer. The memory is
// owned by the engine and valid while the buffer is alive and not detached.
// A zero address with a pending exception means v is not an ArrayBuffer.
func (c *Context) GetArrayBuffer(v *Value) (ptr uintptr, size int) {
	tls := c.rt.tls
	psize := tls.Alloc(int(unsafe.Sizeof(lib.Tsize_t(0))))
	defer tls.Free(int(unsafe.Sizeof(lib.Tsize_t(0))))
	*(*lib.Tsize_t)(ptrOf(psize)) = 0
	ptr = lib.XJS_GetArrayBuffer(tls, c.ptr(), psize, v.raw())
	return ptr, int(*(*lib.Tsize_t)(ptrOf(psize)))
}

// ArrayBufferBytes copies the contents of an ArrayBuffer into Go memory.
func (c *Context) ArrayBufferBytes(v *Value) ([]byte, error) {
	p, n := c.GetArrayBuffer(v)
	if p == 0 {
		if err := c.takeException(); err != nil {
			return nil, err
		}
		return []byte{}, nil
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(ptrOf(p)), n))
	return out, nil
}

func (c *Context) IsFunction(v *Value) bool {
	return lib.XJS_IsFunction(c.rt.tls, c.ptr(), v.raw()) != 0
}

func (c *Context) IsArray(v *Value) bool {
	return lib.XJS_IsArray(c.rt.tls, c.ptr(), v.raw()) > 0
}

func (c *Context) IsError(v *Value) bool {
	return lib.XJS_IsError(c.rt.tls, c.ptr(), v.raw()) != 0
}

// PromiseState reports the state of v, or NotAPromise.
func (c *Context) PromiseState(v *Value) PromiseState {
	return PromiseState(lib.XJS_PromiseState(c.rt.tls, c.ptr(), v.raw()))
}

// IsPromise reports whether v is a promise object.
func (c *Context) IsPromise(v *Value) bool {
	return c.PromiseState(v) != NotAPromise
}
