package jsbridge

import (
	"errors"
	"fmt"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// ErrContextClosed is returned by operations on a freed context.
var ErrContextClosed = errors.New("jsbridge: context is closed")

// EvalFlag selects how Eval treats its source (JS_EVAL_*).
type EvalFlag int32

const (
	EvalGlobal           EvalFlag = lib.MJS_EVAL_TYPE_GLOBAL // global code
	EvalModule           EvalFlag = lib.MJS_EVAL_TYPE_MODULE // ES module code; imports go through the MODULE channel
	EvalStrict           EvalFlag = lib.MJS_EVAL_FLAG_STRICT
	EvalCompileOnly      EvalFlag = lib.MJS_EVAL_FLAG_COMPILE_ONLY // return the compiled function or module without running it
	EvalBacktraceBarrier EvalFlag = lib.MJS_EVAL_FLAG_BACKTRACE_BARRIER
)

// Context is an evaluation scope (global object and realm) of a runtime.
type Context struct {
	rt     *Runtime
	ref    uintptr // *JSContext
	closed bool
}

// NewContext creates a context in r.
func (r *Runtime) NewContext() (*Context, error) {
	if r.closed {
		return nil, ErrRuntimeClosed
	}
	ref := lib.XJS_NewContext(r.tls, r.ref)
	if ref == 0 {
		return nil, fmt.Errorf("creating QuickJS context: out of memory")
	}
	c := &Context{rt: r, ref: ref}
	r.contexts[ref] = c
	return c, nil
}

// Free destroys the context. The runtime and its side table are unaffected.
// Any later use of c other than Free and ToString panics.
func (c *Context) Free() {
	if c.closed {
		return
	}
	delete(c.rt.contexts, c.ref)
	lib.XJS_FreeContext(c.rt.tls, c.ref)
	c.closed = true
	c.rt.flushIfIdle()
}

// Runtime returns the runtime owning c (JS_GetRuntime).
func (c *Context) Runtime() *Runtime {
	return c.rt
}

// ptr returns the engine context. Using a freed context panics, the same
// way a released value handle does.
func (c *Context) ptr() uintptr {
	if c.closed {
		panic("jsbridge: use of freed context")
	}
	return c.ref
}

// Eval evaluates source and returns its completion value, or the exception
// sentinel. With EvalModule, imports are resolved through the channel.
func (c *Context) Eval(source, filename string, flags EvalFlag) *Value {
	r := c.rt
	r.enter()
	defer r.leave()

	src := cstring(source)
	defer libc.Xfree(r.tls, src)
	name := cstring(filename)
	defer libc.Xfree(r.tls, name)
	return box(lib.XJS_Eval(r.tls, c.ptr(), src, lib.Tsize_t(len(source)), name, int32(flags)))
}

// Call invokes fn with this and args. The arguments are borrowed for the
// duration of the call.
func (c *Context) Call(fn, this *Value, args ...*Value) *Value {
	r := c.rt
	r.enter()
	defer r.leave()

	var argv uintptr
	if len(args) > 0 {
		list := NewValueList(c, len(args))
		defer list.Free()
		for i, a := range args {
			list.Set(i, a)
		}
		argv = list.Ptr()
	}
	return box(lib.XJS_Call(r.tls, c.ptr(), fn.raw(), this.raw(), int32(len(args)), argv))
}

// ExecutePendingJob runs one job from the promise job queue. It returns 1
// if a job ran, 0 if the queue was empty and a negative status if the job
// threw, in which case the exception is pending in the returned context.
func (r *Runtime) ExecutePendingJob() (int, *Context) {
	r.enter()
	defer r.leave()

	pctx := r.tls.Alloc(int(unsafe.Sizeof(uintptr(0))))
	defer r.tls.Free(int(unsafe.Sizeof(uintptr(0))))
	*(*uintptr)(ptrOf(pctx)) = 0
	ret := lib.XJS_ExecutePendingJob(r.tls, r.ref, pctx)
	return int(ret), r.contexts[*(*uintptr)(ptrOf(pctx))]
}

// Throw makes obj the pending exception of c and returns the exception
// sentinel. obj itself stays owned by the caller.
func (c *Context) Throw(obj *Value) *Value {
	return box(lib.XJS_Throw(c.rt.tls, c.ptr(), lib.XDupValue(c.rt.tls, c.ptr(), obj.raw())))
}

// ThrowError throws a new Error whose message is err's text.
func (c *Context) ThrowError(err error) *Value {
	obj := c.NewError()
	msg := c.NewString(err.Error())
	atom := c.NewAtom("message")
	c.DefinePropertyValue(obj, atom, msg, PropWritable|PropConfigurable)
	c.FreeAtom(atom)
	exc := box(lib.XJS_Throw(c.rt.tls, c.ptr(), obj.raw()))
	obj.Release()
	return exc
}

// GetException takes the pending exception out of c.
func (c *Context) GetException() *Value {
	return box(lib.XJS_GetException(c.rt.tls, c.ptr()))
}

// Exception boxes the exception sentinel.
func Exception() *Value { return box(rawException) }

// Undefined boxes undefined.
func Undefined() *Value { return box(rawUndefined) }

// Null boxes null.
func Null() *Value { return box(rawNull) }

func (c *Context) NewBool(b bool) *Value { return box(rawBool(b)) }

func (c *Context) NewInt64(n int64) *Value { return box(rawInt64(n)) }

func (c *Context) NewFloat64(d float64) *Value { return box(rawNumber(d)) }

// NewString creates a string value from the UTF-8 bytes of s.
func (c *Context) NewString(s string) *Value {
	p := cstring(s)
	defer libc.Xfree(c.rt.tls, p)
	return box(lib.XJS_NewStringLen(c.rt.tls, c.ptr(), p, lib.Tsize_t(len(s))))
}

// NewArrayBufferCopy creates an ArrayBuffer holding a copy of b.
func (c *Context) NewArrayBufferCopy(b []byte) *Value {
	tls := c.rt.tls
	if len(b) == 0 {
		return box(lib.XJS_NewArrayBufferCopy(tls, c.ptr(), 0, 0))
	}
	// Engine calls can move the goroutine stack, so b is staged in C memory.
	p := lib.Xjs_malloc(tls, c.ptr(), lib.Tsize_t(len(b)))
	if p == 0 {
		return box(rawException)
	}
	defer lib.Xjs_free(tls, c.ptr(), p)
	copy(unsafe.Slice((*byte)(ptrOf(p)), len(b)), b)
	return box(lib.XJS_NewArrayBufferCopy(tls, c.ptr(), p, lib.Tsize_t(len(b))))
}

func (c *Context) NewArray() *Value { return box(lib.XJS_NewArray(c.rt.tls, c.ptr())) }

func (c *Context) NewObject() *Value { return box(lib.XJS_NewObject(c.rt.tls, c.ptr())) }

func (c *Context) NewError() *Value { return box(lib.XJS_NewError(c.rt.tls, c.ptr())) }

// GlobalObject returns a new reference to the global object.
func (c *Context) GlobalObject() *Value {
	return box(lib.XJS_GetGlobalObject(c.rt.tls, c.ptr()))
}

// NewCFunction creates a function that, when called from script, is
// delivered to the channel as a MethodCall carrying data. data is
// duplicated; the caller keeps its own reference.
func (c *Context) NewCFunction(data *Value) *Value {
	tls := c.rt.tls
	pdata := tls.Alloc(int(sizeOfValue))
	defer tls.Free(int(sizeOfValue))
	*(*lib.TJSValue)(ptrOf(pdata)) = data.raw()
	return box(lib.XJS_NewCFunctionData(tls, c.ptr(), methodTrampolineFP, 0, 0, 1, pdata))
}

// NewPromiseCapability creates a pending promise together with the two
// functions that settle it. All three values are owned by the caller. On
// failure promise is the exception sentinel and resolve and reject are nil.
func (c *Context) NewPromiseCapability() (promise, resolve, reject *Value) {
	tls := c.rt.tls
	funcs := tls.Alloc(2 * int(sizeOfValue))
	defer tls.Free(2 * int(sizeOfValue))
	p := lib.XJS_NewPromiseCapability(tls, c.ptr(), funcs)
	if rawTag(p) == TagException {
		return box(p), nil, nil
	}
	resolve = box(*(*lib.TJSValue)(ptrOf(funcs)))
	reject = box(*(*lib.TJSValue)(ptrOf(funcs + sizeOfValue)))
	return box(p), resolve, reject
}

// FreePtr releases scratch memory the engine allocated for c, such as a
// property table.
func (c *Context) FreePtr(ptr uintptr) {
	lib.Xjs_free(c.rt.tls, c.ptr(), ptr)
}
