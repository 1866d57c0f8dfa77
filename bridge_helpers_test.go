package jsbridge

import (
	"testing"
)

// recorder is a Channel that answers module requests from a map, forwards
// method calls to onMethod and records everything else.
type recorder struct {
	t *testing.T

	modules    map[string]string
	onMethod   func(call *MethodCall)
	specifiers []string
	rejections []string
	freed      []FreeObjectCall
	types      []ChannelType
}

func (rec *recorder) Dispatch(call Call) {
	rec.types = append(rec.types, call.Type())
	switch c := call.(type) {
	case *ModuleCall:
		rec.specifiers = append(rec.specifiers, c.Specifier)
		c.Source = rec.modules[c.Specifier]
	case *MethodCall:
		if rec.onMethod != nil {
			rec.onMethod(c)
		}
	case *PromiseTrackCall:
		s, err := c.Context.ToString(c.Reason)
		if err != nil {
			rec.t.Errorf("stringifying rejection reason: %v", err)
		}
		rec.rejections = append(rec.rejections, s)
	case *FreeObjectCall:
		rec.freed = append(rec.freed, *c)
	}
}

func newTestRuntime(t *testing.T, rec *recorder, cfg Config) (*Runtime, *Context) {
	t.Helper()
	if rec != nil {
		rec.t = t
	}
	var ch Channel
	if rec != nil {
		ch = rec
	}
	rt, err := NewRuntimeWithConfig(ch, cfg)
	if err != nil {
		t.Fatalf("NewRuntimeWithConfig: %v", err)
	}
	t.Cleanup(rt.Free)
	ctx, err := rt.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return rt, ctx
}

// evalString evaluates js as global code and stringifies the result.
func evalString(t *testing.T, ctx *Context, js string) string {
	t.Helper()
	v := ctx.Eval(js, "<test>", EvalGlobal)
	if v.IsException() {
		t.Fatalf("eval %q: %v", js, ctx.ExceptionError())
	}
	defer v.Free(ctx)
	s, err := ctx.ToString(v)
	if err != nil {
		t.Fatalf("ToString: %v", err)
	}
	return s
}

// setGlobal defines name on the global object, consuming val.
func setGlobal(t *testing.T, ctx *Context, name string, val *Value) {
	t.Helper()
	global := ctx.GlobalObject()
	defer global.Free(ctx)
	atom := ctx.NewAtom(name)
	defer ctx.FreeAtom(atom)
	if !ctx.DefinePropertyValue(global, atom, val, PropCWE) {
		t.Fatalf("defining %s: %v", name, ctx.ExceptionError())
	}
}

// installMethod exposes a native function named name whose closure data is
// the integer tag.
func installMethod(t *testing.T, ctx *Context, name string, tag int64) {
	t.Helper()
	data := ctx.NewInt64(tag)
	fn := ctx.NewCFunction(data)
	data.Free(ctx)
	if fn.IsException() {
		t.Fatalf("NewCFunction: %v", ctx.ExceptionError())
	}
	setGlobal(t, ctx, name, fn)
}
