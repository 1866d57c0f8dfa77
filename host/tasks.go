package host

import (
	"fmt"
	"log"

	"github.com/cryguy/jsbridge"
	"github.com/cryguy/jsbridge/internal/eventloop"
)

// AsyncFunc runs on its own goroutine with the stringified arguments of the
// script call. Its result resolves, and its error rejects, the promise the
// script received.
type AsyncFunc func(args []string) (string, error)

// task holds the resolving functions of a promise handed to script. Script
// never sees them, so only Settle can settle the promise.
type task struct {
	resolve *jsbridge.Value
	reject  *jsbridge.Value
}

// RegisterAsync exposes fn as the global function name returning a promise.
func (h *Host) RegisterAsync(name string, fn AsyncFunc) error {
	return h.Register(name, func(ctx *jsbridge.Context, _ *jsbridge.Value, args []*jsbridge.Value) *jsbridge.Value {
		strs := make([]string, len(args))
		for i := range args {
			strs[i] = ArgString(ctx, args, i)
		}

		promise, resolve, reject := ctx.NewPromiseCapability()
		if promise.IsException() {
			return promise
		}
		h.nextTask++
		id := h.nextTask
		h.tasks[id] = task{resolve: resolve, reject: reject}

		ch := make(chan eventloop.Completion, 1)
		go func() {
			v, err := fn(strs)
			ch <- eventloop.Completion{Value: v, Err: err}
		}()
		h.el.AddPending(&eventloop.PendingTask{ResultCh: ch, ID: id})
		return promise
	})
}

// Settle implements eventloop.Runner.
func (h *Host) Settle(id int, c eventloop.Completion) {
	t, ok := h.tasks[id]
	if !ok {
		return
	}
	delete(h.tasks, id)
	defer t.free(h.ctx)

	fn, arg := t.resolve, h.ctx.NewString(fmt.Sprint(c.Value))
	if c.Err != nil {
		arg.Free(h.ctx)
		fn, arg = t.reject, newError(h.ctx, c.Err.Error())
	}
	defer arg.Free(h.ctx)

	undef := jsbridge.Undefined()
	defer undef.Release()
	res := h.ctx.Call(fn, undef, arg)
	if res.IsException() {
		res.Release()
		log.Printf("host: settling task %d: %v", id, h.ctx.ExceptionError())
		return
	}
	res.Free(h.ctx)
}

func (t task) free(ctx *jsbridge.Context) {
	t.resolve.Free(ctx)
	t.reject.Free(ctx)
}

// freeTasks drops the resolving functions of tasks that never settled.
func (h *Host) freeTasks() {
	for id, t := range h.tasks {
		delete(h.tasks, id)
		t.free(h.ctx)
	}
}

// newError creates an Error object carrying msg.
func newError(ctx *jsbridge.Context, msg string) *jsbridge.Value {
	obj := ctx.NewError()
	atom := ctx.NewAtom("message")
	ctx.DefinePropertyValue(obj, atom, ctx.NewString(msg), jsbridge.PropWritable|jsbridge.PropConfigurable)
	ctx.FreeAtom(atom)
	return obj
}
