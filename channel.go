package jsbridge

import (
	"fmt"
	"log"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// Channel receives every call the engine makes back into the host: module
// resolution, host method invocation, unhandled rejections and host object
// finalization. Calls are synchronous and strictly nested inside the bridge
// call that triggered them.
type Channel interface {
	Dispatch(call Call)
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(call Call)

func (f ChannelFunc) Dispatch(call Call) { f(call) }

// Call is one engine-initiated call. The concrete type is one of
// *ModuleCall, *MethodCall, *PromiseTrackCall or *FreeObjectCall.
type Call interface {
	Type() ChannelType
	call()
}

// ModuleCall asks the host for the source of an imported module. Leaving
// Source empty reports the module as not found and fails the import.
type ModuleCall struct {
	Context   *Context
	Specifier string // normalised module name
	Source    string // set by the host
}

// MethodCall is an invocation of a function created with NewCFunction.
//
// This, Args and Data are borrowed: they stay valid only until Dispatch
// returns and must not be freed. Keep a value beyond the call with DupValue.
// Result is owned by the engine once Dispatch returns; nil means undefined,
// and ctx.Throw or ctx.ThrowError make the call fail.
type MethodCall struct {
	Context *Context
	This    *Value
	Args    []*Value
	Data    *Value // closure data given to NewCFunction
	Result  *Value
}

// PromiseTrackCall reports a promise rejected with no handler attached. A
// later handler is not reported. Promise and Reason are borrowed.
type PromiseTrackCall struct {
	Context *Context
	Promise *Value
	Reason  *Value
}

// FreeObjectCall reports that a host class object was collected. It is
// delivered at most once per object and never after Runtime.Free. Unless
// the runtime defers finalizers, the host must not allocate engine values
// or run script while handling it.
type FreeObjectCall struct {
	Runtime *Runtime
	ClassID ClassID
	Opaque  uintptr
}

func (*ModuleCall) Type() ChannelType       { return ChannelModule }
func (*MethodCall) Type() ChannelType       { return ChannelMethod }
func (*PromiseTrackCall) Type() ChannelType { return ChannelPromiseTrack }
func (*FreeObjectCall) Type() ChannelType   { return ChannelFreeObject }

func (*ModuleCall) call()       {}
func (*MethodCall) call()       {}
func (*PromiseTrackCall) call() {}
func (*FreeObjectCall) call()   {}

// dispatch hands call to the channel. A panicking channel is logged and
// otherwise treated as having produced no result.
func (r *Runtime) dispatch(call Call) (panicked any) {
	ch := r.block.channel
	if ch == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			log.Printf("jsbridge: channel panicked handling %s: %v", call.Type(), p)
			panicked = p
		}
	}()
	ch.Dispatch(call)
	return nil
}

var (
	moduleLoaderFP     = cfunc(moduleLoader)
	methodTrampolineFP = cfunc(methodTrampoline)
	rejectionTrackerFP = cfunc(rejectionTracker)
)

// moduleLoader is the JSModuleLoaderFunc. It compiles the source the host
// returns and hands the module record to the engine; NULL fails the load.
func moduleLoader(tls *libc.TLS, ctx uintptr, moduleName uintptr, opaque uintptr) uintptr {
	r := lookupRuntime(opaque)
	if r == nil {
		return 0
	}
	c := r.contexts[ctx]
	if c == nil {
		return 0
	}
	call := &ModuleCall{Context: c, Specifier: libc.GoString(moduleName)}
	r.dispatch(call)
	if call.Source == "" {
		return 0
	}

	src := cstring(call.Source)
	defer libc.Xfree(tls, src)
	fn := lib.XJS_Eval(tls, ctx, src, lib.Tsize_t(len(call.Source)), moduleName,
		int32(EvalModule|EvalCompileOnly))
	if rawTag(fn) == TagException {
		return 0
	}
	// The compiled module is referenced by the engine's module list.
	m := rawPtr(fn)
	lib.XFreeValue(tls, ctx, fn)
	return m
}

// methodTrampoline is the single native function behind every NewCFunction
// value. It forwards the call frame through the channel.
func methodTrampoline(tls *libc.TLS, ctx uintptr, thisVal lib.TJSValue, argc int32, argv uintptr, magic int32, funcData uintptr) lib.TJSValue {
	r := runtimeOf(tls, lib.XJS_GetRuntime(tls, ctx))
	if r == nil {
		return rawUndefined
	}
	c := r.contexts[ctx]
	if c == nil {
		return rawUndefined
	}

	call := &MethodCall{
		Context: c,
		This:    borrow(thisVal),
		Args:    make([]*Value, argc),
		Data:    borrow(*(*lib.TJSValue)(ptrOf(funcData))),
	}
	for i := range call.Args {
		call.Args[i] = borrow(*(*lib.TJSValue)(ptrOf(argv + uintptr(i)*sizeOfValue)))
	}

	if p := r.dispatch(call); p != nil {
		if res := call.Result; res != nil && !res.released && !res.borrowed {
			lib.XFreeValue(tls, ctx, res.raw())
			res.Release()
		}
		releaseLive(append(call.Args, call.This, call.Data)...)
		return throwInternal(tls, ctx, fmt.Sprintf("host method panicked: %v", p))
	}

	res := rawUndefined
	if call.Result != nil && !call.Result.released {
		res = call.Result.raw()
		if call.Result.borrowed {
			// The engine expects a new reference, not one of its arguments.
			res = lib.XDupValue(tls, ctx, res)
		} else {
			call.Result.Release()
		}
	}
	releaseLive(append(call.Args, call.This, call.Data)...)
	return res
}

// releaseLive releases the borrowed boxes the host did not release itself.
func releaseLive(vs ...*Value) {
	for _, v := range vs {
		if v != nil && !v.released {
			v.Release()
		}
	}
}

// rejectionTracker is the JSHostPromiseRejectionTracker. Only the unhandled
// transition is forwarded.
func rejectionTracker(tls *libc.TLS, ctx uintptr, promise lib.TJSValue, reason lib.TJSValue, isHandled int32, opaque uintptr) {
	if isHandled != 0 {
		return
	}
	r := lookupRuntime(opaque)
	if r == nil {
		return
	}
	c := r.contexts[ctx]
	if c == nil {
		return
	}
	call := &PromiseTrackCall{Context: c, Promise: borrow(promise), Reason: borrow(reason)}
	r.dispatch(call)
	releaseLive(call.Promise, call.Reason)
}
