package jsbridge

import (
	"fmt"
	"sync"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// ClassID identifies a host object class. Zero is never a valid id.
type ClassID uint32

// Class ids are allocated by the engine from one process-wide counter and
// must stay below 1<<16, so each name is given its id once per process and
// every runtime registers the class under that same id.
var (
	classIDsMu sync.Mutex
	classIDs   = make(map[string]ClassID)
)

func classIDFor(tls *libc.TLS, name string) ClassID {
	classIDsMu.Lock()
	defer classIDsMu.Unlock()
	if id, ok := classIDs[name]; ok {
		return id
	}
	pid := tls.Alloc(int(unsafe.Sizeof(lib.TJSClassID(0))))
	defer tls.Free(int(unsafe.Sizeof(lib.TJSClassID(0))))
	*(*lib.TJSClassID)(ptrOf(pid)) = 0
	id := ClassID(lib.XJS_NewClassID(tls, pid))
	if id != 0 {
		classIDs[name] = id
	}
	return id
}

type classFinalizerFunc func(tls *libc.TLS, rt uintptr, val lib.TJSValue)

// NewClass registers the host object class name in the context's runtime
// and returns its id. A name maps to the same id in every runtime of the
// process, and registering a name the runtime already knows returns that
// id. On failure an InternalError is left pending in ctx and 0 is returned.
func (c *Context) NewClass(name string) ClassID {
	r := c.rt
	tls := r.tls
	ctx := c.ptr()
	id := classIDFor(tls, name)
	if id == 0 {
		throwInternal(tls, ctx, fmt.Sprintf("cannot allocate class id for %q", name))
		return 0
	}
	if lib.XJS_IsRegisteredClass(tls, r.ref, lib.TJSClassID(id)) != 0 {
		return id
	}

	// One finalizer closure per class; the id is baked in so the object's
	// opaque can be read without asking the engine for its class.
	fin := classFinalizerFunc(func(tls *libc.TLS, rt uintptr, val lib.TJSValue) {
		finalizeHostObject(tls, rt, val, id)
	})

	cname := cstring(name)
	defer libc.Xfree(tls, cname)
	pdef := tls.Alloc(int(unsafe.Sizeof(lib.TJSClassDef{})))
	defer tls.Free(int(unsafe.Sizeof(lib.TJSClassDef{})))
	*(*lib.TJSClassDef)(ptrOf(pdef)) = lib.TJSClassDef{Fclass_name: cname, Ffinalizer: cfunc(fin)}

	if lib.XJS_NewClass(tls, r.ref, lib.TJSClassID(id), pdef) < 0 {
		throwInternal(tls, ctx, fmt.Sprintf("cannot register class %q", name))
		return 0
	}
	r.finalizers[id] = fin
	return id
}

// NewObjectClass creates an object of class id carrying opaque as private
// data. The bridge never dereferences opaque; it comes back in the
// FREE_OBJECT notification when the object is collected.
func (c *Context) NewObjectClass(id ClassID, opaque uintptr) *Value {
	obj := lib.XJS_NewObjectClass(c.rt.tls, c.ptr(), int32(id))
	if rawTag(obj) == TagException {
		return box(obj)
	}
	lib.XJS_SetOpaque(c.rt.tls, obj, opaque)
	return box(obj)
}

// GetObjectOpaque returns the private data of v if v is of class id, or 0.
func (c *Context) GetObjectOpaque(v *Value, id ClassID) uintptr {
	return lib.XJS_GetOpaque(c.rt.tls, v.raw(), lib.TJSClassID(id))
}

// finalizeHostObject runs from the engine's collector. The runtime is
// resolved through its opaque slot, which Runtime.Free clears first.
func finalizeHostObject(tls *libc.TLS, rt uintptr, val lib.TJSValue, id ClassID) {
	r := runtimeOf(tls, rt)
	if r == nil {
		return
	}
	call := &FreeObjectCall{
		Runtime: r,
		ClassID: id,
		Opaque:  lib.XJS_GetOpaque(tls, val, lib.TJSClassID(id)),
	}
	if r.deferFinalizers {
		r.pendingFree = append(r.pendingFree, call)
		return
	}
	r.dispatch(call)
}
