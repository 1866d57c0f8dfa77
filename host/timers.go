package host

import (
	"fmt"
	"log"
	"time"

	"github.com/cryguy/jsbridge"
)

// timersJS evaluates to an installer taking the Go schedule and cancel
// functions. It defines the timer globals and returns the function the
// host calls with a timer id when the event loop fires it. Callbacks stay
// in the installer's closure, out of reach of script.
const timersJS = `(function(schedule, cancel) {
	const pending = new Map();
	function add(repeat, fn, ms, args) {
		if (typeof fn !== 'function') return 0;
		const id = schedule(Number(ms) || 0, repeat);
		pending.set(id, { fn, args, repeat });
		return id;
	}
	function clear(id) {
		if (!pending.delete(id)) return;
		cancel(id);
	}
	globalThis.setTimeout = (fn, ms, ...args) => add(false, fn, ms, args);
	globalThis.setInterval = (fn, ms, ...args) => add(true, fn, ms, args);
	globalThis.clearTimeout = clear;
	globalThis.clearInterval = clear;
	return function(id) {
		const t = pending.get(id);
		if (t === undefined) return;
		if (!t.repeat) pending.delete(id);
		t.fn(...t.args);
	};
})`

func (h *Host) setupTimers() error {
	schedule, err := h.NewFunction(func(ctx *jsbridge.Context, _ *jsbridge.Value, args []*jsbridge.Value) *jsbridge.Value {
		delay := time.Duration(ArgInt(ctx, args, 0)) * time.Millisecond
		return ctx.NewInt64(int64(h.el.RegisterTimer(delay, ArgBool(ctx, args, 1))))
	})
	if err != nil {
		return fmt.Errorf("installing timers: %w", err)
	}
	defer schedule.Free(h.ctx)
	cancel, err := h.NewFunction(func(ctx *jsbridge.Context, _ *jsbridge.Value, args []*jsbridge.Value) *jsbridge.Value {
		h.el.ClearTimer(int(ArgInt(ctx, args, 0)))
		return nil
	})
	if err != nil {
		return fmt.Errorf("installing timers: %w", err)
	}
	defer cancel.Free(h.ctx)

	install := h.ctx.Eval(timersJS, "<timers>", jsbridge.EvalGlobal)
	if install.IsException() {
		install.Release()
		return fmt.Errorf("installing timers: %w", h.ctx.ExceptionError())
	}
	defer install.Free(h.ctx)

	undef := jsbridge.Undefined()
	defer undef.Release()
	fire := h.ctx.Call(install, undef, schedule, cancel)
	if fire.IsException() {
		fire.Release()
		return fmt.Errorf("installing timers: %w", h.ctx.ExceptionError())
	}
	h.fireTimer = fire
	return nil
}

// FireTimer implements eventloop.Runner.
func (h *Host) FireTimer(id int) {
	if h.fireTimer == nil {
		return
	}
	arg := h.ctx.NewInt64(int64(id))
	defer arg.Free(h.ctx)
	undef := jsbridge.Undefined()
	defer undef.Release()

	res := h.ctx.Call(h.fireTimer, undef, arg)
	if res.IsException() {
		res.Release()
		log.Printf("host: timer %d: %v", id, h.ctx.ExceptionError())
		return
	}
	res.Free(h.ctx)
}
