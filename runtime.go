package jsbridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cryguy/jsbridge/internal/core"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// ErrRuntimeClosed is returned by operations on a freed runtime.
var ErrRuntimeClosed = errors.New("jsbridge: runtime is closed")

// runtimeBlock is the per-runtime side table the engine callbacks reach
// through the runtime opaque slot.
type runtimeBlock struct {
	channel   Channel
	timeoutMs int64
	callStart time.Time // zero when no call is being timed
	depth     int       // nesting of bridge entry points on the stack
}

// Runtime is one isolated engine instance. It is not safe for concurrent
// use; the caller serialises every call into a runtime and its contexts.
type Runtime struct {
	tls *libc.TLS
	ref uintptr // *JSRuntime
	id  uintptr // key of this runtime in the handle table
	raw uintptr // intrinsic-free context backing the runtime-level helpers

	block runtimeBlock

	contexts   map[uintptr]*Context
	finalizers map[ClassID]classFinalizerFunc // keeps finalizer funcvals reachable

	deferFinalizers bool
	pendingFree     []*FreeObjectCall
	flushing        bool

	closed bool
}

// Handle table mapping the ids stored in JS_SetRuntimeOpaque back to their
// Go runtimes. Go pointers never enter C memory.
var (
	runtimesMu sync.RWMutex
	runtimes   = make(map[uintptr]*Runtime)
	nextID     uintptr = 1
)

func registerRuntime(r *Runtime) uintptr {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()
	id := nextID
	nextID++
	runtimes[id] = r
	return id
}

func lookupRuntime(id uintptr) *Runtime {
	if id == 0 {
		return nil
	}
	runtimesMu.RLock()
	defer runtimesMu.RUnlock()
	return runtimes[id]
}

func unregisterRuntime(id uintptr) {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()
	delete(runtimes, id)
}

// runtimeOf resolves the Go runtime of an engine runtime pointer through its
// opaque slot. It returns nil once the runtime has been detached.
func runtimeOf(tls *libc.TLS, rt uintptr) *Runtime {
	return lookupRuntime(lib.XJS_GetRuntimeOpaque(tls, rt))
}

// NewRuntime creates an engine runtime whose engine-initiated calls are all
// delivered to ch. timeoutMs bounds each top-level call; 0 disables it.
func NewRuntime(ch Channel, timeoutMs int64) (*Runtime, error) {
	return NewRuntimeWithConfig(ch, Config{TimeoutMs: timeoutMs})
}

// NewRuntimeWithConfig is NewRuntime with memory, stack and finalizer
// settings applied before the runtime is returned.
func NewRuntimeWithConfig(ch Channel, cfg Config) (*Runtime, error) {
	tls := libc.NewTLS()
	ref := lib.XJS_NewRuntime(tls)
	if ref == 0 {
		tls.Close()
		return nil, fmt.Errorf("creating QuickJS runtime: out of memory")
	}
	raw := lib.XJS_NewContextRaw(tls, ref)
	if raw == 0 {
		lib.XJS_FreeRuntime(tls, ref)
		tls.Close()
		return nil, fmt.Errorf("creating QuickJS runtime: out of memory")
	}

	r := &Runtime{
		tls: tls,
		ref: ref,
		raw: raw,
		block: runtimeBlock{
			channel:   ch,
			timeoutMs: cfg.TimeoutMs,
		},
		contexts:        make(map[uintptr]*Context),
		finalizers:      make(map[ClassID]classFinalizerFunc),
		deferFinalizers: cfg.DeferFinalizers,
	}
	r.id = registerRuntime(r)

	lib.XJS_SetRuntimeOpaque(tls, ref, r.id)
	lib.XJS_SetHostPromiseRejectionTracker(tls, ref, rejectionTrackerFP, r.id)
	lib.XJS_SetModuleLoaderFunc(tls, ref, 0, moduleLoaderFP, r.id)
	lib.XJS_SetInterruptHandler(tls, ref, interruptHandlerFP, r.id)

	if cfg.MemoryLimitMB > 0 {
		r.SetMemoryLimit(uint64(cfg.MemoryLimitMB) * core.MB)
	}
	stack := cfg.MaxStackSlots
	if stack <= 0 {
		stack = lib.MaxStackSlots
	}
	r.SetMaxStackSize(uint64(stack))
	if cfg.GCThreshold != 0 {
		r.SetGCThreshold(cfg.GCThreshold)
	}
	return r, nil
}

// Free delivers any queued finalizer notifications, detaches the side table
// so no further channel call can be made, then destroys the contexts still
// open and frees the engine runtime. Objects collected by the teardown
// itself are not reported.
func (r *Runtime) Free() {
	if r.closed {
		return
	}
	r.FlushFinalizers()

	lib.XJS_SetRuntimeOpaque(r.tls, r.ref, 0)
	unregisterRuntime(r.id)
	r.block.channel = nil

	for _, c := range r.contexts {
		c.Free()
	}
	r.pendingFree = nil

	lib.XJS_FreeContext(r.tls, r.raw)
	lib.XJS_FreeRuntime(r.tls, r.ref)
	r.tls.Close()
	r.closed = true
}

// Closed reports whether Free has been called.
func (r *Runtime) Closed() bool {
	return r.closed
}

// SetMaxStackSize limits script recursion. The translated engine counts
// libc TLS stack slots, not bytes; a depth past slots raises an
// InternalError "stack overflow". 0 selects the engine's fallback of
// lib.MaxStackSlots.
func (r *Runtime) SetMaxStackSize(slots uint64) {
	lib.XJS_SetMaxStackSize(r.tls, r.ref, lib.Tsize_t(slots))
}

// SetMemoryLimit caps the engine heap; breaches surface as exceptions.
func (r *Runtime) SetMemoryLimit(bytes uint64) {
	lib.XJS_SetMemoryLimit(r.tls, r.ref, lib.Tsize_t(bytes))
}

// SetGCThreshold sets the allocation volume between automatic collections.
// A negative threshold disables automatic collection.
func (r *Runtime) SetGCThreshold(bytes int64) {
	lib.XJS_SetGCThreshold(r.tls, r.ref, lib.Tsize_t(bytes))
}

// SetTimeout replaces the execution budget for subsequent calls. It is how
// a host retries after a timeout abort with a larger budget.
func (r *Runtime) SetTimeout(timeoutMs int64) {
	r.block.timeoutMs = timeoutMs
}

// Timeout returns the current execution budget in milliseconds.
func (r *Runtime) Timeout() int64 {
	return r.block.timeoutMs
}

// CallStart returns the start of the call currently being timed, or the
// zero time if none is (including right after a timeout abort).
func (r *Runtime) CallStart() time.Time {
	return r.block.callStart
}

// RunGC forces a cycle collection.
func (r *Runtime) RunGC() {
	r.enter()
	defer r.leave()
	lib.XJS_RunGC(r.tls, r.ref)
}

// enter marks the start of a bridge entry point that may run script. Only
// the outermost entry opens a new timeout window; calls made from inside a
// channel callback run on the outer budget.
func (r *Runtime) enter() {
	if r.block.depth == 0 {
		r.block.callStart = time.Now()
	}
	r.block.depth++
}

func (r *Runtime) leave() {
	r.block.depth--
	if r.block.depth == 0 {
		r.block.callStart = time.Time{}
	}
	r.flushIfIdle()
}

// interrupted reports whether the governor has aborted the current entry.
// Tripping clears callStart while the entry is still on the stack.
func (r *Runtime) interrupted() bool {
	return r.block.timeoutMs != 0 && r.block.depth > 0 && r.block.callStart.IsZero()
}

func (r *Runtime) flushIfIdle() {
	if r.block.depth == 0 && len(r.pendingFree) > 0 {
		r.FlushFinalizers()
	}
}

// FlushFinalizers delivers FREE_OBJECT notifications queued while
// Config.DeferFinalizers is set. It is a no-op otherwise.
func (r *Runtime) FlushFinalizers() {
	if r.flushing {
		return
	}
	r.flushing = true
	defer func() { r.flushing = false }()
	for len(r.pendingFree) > 0 {
		call := r.pendingFree[0]
		r.pendingFree = r.pendingFree[1:]
		r.dispatch(call)
	}
}
