package host

import (
	"fmt"

	"github.com/cryguy/jsbridge"
)

// Func is a Go function callable from script. this and args are borrowed
// for the duration of the call. The returned value is handed to the
// engine; nil returns undefined and ctx.ThrowError makes the call throw.
type Func func(ctx *jsbridge.Context, this *jsbridge.Value, args []*jsbridge.Value) *jsbridge.Value

// Register exposes fn as the global function name.
func (h *Host) Register(name string, fn Func) error {
	global := h.ctx.GlobalObject()
	defer global.Free(h.ctx)
	return h.RegisterOn(global, name, fn)
}

// RegisterOn exposes fn as the method name of obj.
func (h *Host) RegisterOn(obj *jsbridge.Value, name string, fn Func) error {
	f, err := h.NewFunction(fn)
	if err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}
	atom := h.ctx.NewAtom(name)
	defer h.ctx.FreeAtom(atom)
	if !h.ctx.DefinePropertyValue(obj, atom, f, jsbridge.PropCWE) {
		return fmt.Errorf("registering %s: %w", name, h.ctx.ExceptionError())
	}
	return nil
}

// NewFunction wraps fn in a script function value owned by the caller.
// The closure data of the function is the id of fn in the host table.
func (h *Host) NewFunction(fn Func) (*jsbridge.Value, error) {
	h.nextFn++
	id := h.nextFn
	h.funcs[id] = fn

	data := h.ctx.NewInt64(id)
	f := h.ctx.NewCFunction(data)
	data.Free(h.ctx)
	if f.IsException() {
		f.Release()
		delete(h.funcs, id)
		return nil, h.ctx.ExceptionError()
	}
	return f, nil
}

func (h *Host) callFunc(c *jsbridge.MethodCall) {
	id, ok := c.Context.ToInt64(c.Data)
	if !ok {
		c.Result = c.Context.ThrowError(fmt.Errorf("host function has no id"))
		return
	}
	fn := h.funcs[id]
	if fn == nil {
		c.Result = c.Context.ThrowError(fmt.Errorf("host function %d is not registered", id))
		return
	}
	c.Result = fn(c.Context, c.This, c.Args)
}

// ArgString stringifies args[i], treating a missing argument as undefined.
func ArgString(ctx *jsbridge.Context, args []*jsbridge.Value, i int) string {
	if i >= len(args) {
		return "undefined"
	}
	s, err := ctx.ToString(args[i])
	if err != nil {
		return ""
	}
	return s
}

// ArgInt converts args[i] to an integer, or returns 0.
func ArgInt(ctx *jsbridge.Context, args []*jsbridge.Value, i int) int64 {
	if i >= len(args) {
		return 0
	}
	n, _ := ctx.ToInt64(args[i])
	return n
}

// ArgBool applies ToBoolean to args[i].
func ArgBool(ctx *jsbridge.Context, args []*jsbridge.Value, i int) bool {
	if i >= len(args) {
		return false
	}
	return ctx.ToBool(args[i]) == 1
}
