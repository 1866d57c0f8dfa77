package jsbridge

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRuntimeBlock_Expired(t *testing.T) {
	start := time.Unix(1000, 0)
	cases := []struct {
		name      string
		timeoutMs int64
		callStart time.Time
		now       time.Time
		want      bool
	}{
		{"disabled", 0, start, start.Add(time.Hour), false},
		{"no call", 50, time.Time{}, start.Add(time.Hour), false},
		{"within budget", 50, start, start.Add(50 * time.Millisecond), false},
		{"over budget", 50, start, start.Add(51 * time.Millisecond), true},
	}
	for _, c := range cases {
		b := runtimeBlock{timeoutMs: c.timeoutMs, callStart: c.callStart}
		if got := b.expired(c.now); got != c.want {
			t.Errorf("%s: expired = %v, want %v", c.name, got, c.want)
		}
		if c.want && !b.callStart.IsZero() {
			t.Errorf("%s: callStart not reset after abort", c.name)
		}
	}
}

func TestRuntime_TimeoutAbortsBusyLoop(t *testing.T) {
	rt, ctx := newTestRuntime(t, nil, Config{TimeoutMs: 50})

	start := time.Now()
	v := ctx.Eval("for (;;) {}", "<loop>", EvalGlobal)
	if !v.IsException() {
		t.Fatalf("expected exception, got tag %d", v.Tag())
	}
	v.Release()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("abort took %v", elapsed)
	}
	err := ctx.ExceptionError()
	if !strings.Contains(err.Error(), "interrupted") {
		t.Errorf("error = %v, want interrupted", err)
	}
	if !rt.CallStart().IsZero() {
		t.Error("callStart not cleared after abort")
	}
}

func TestRuntime_ZeroTimeoutRunsToCompletion(t *testing.T) {
	_, ctx := newTestRuntime(t, nil, Config{})
	got := evalString(t, ctx, "let n = 0; for (let i = 0; i < 2000000; i++) n += i % 3; n")
	if got != "1999999" {
		t.Errorf("result = %s, want 1999999", got)
	}
}

func TestRuntime_RetryWithLargerBudget(t *testing.T) {
	rt, ctx := newTestRuntime(t, nil, Config{TimeoutMs: 5})
	js := "(() => { let s = 0; for (let i = 0; i < 5000000; i++) s += i; return 'done'; })()"
	v := ctx.Eval(js, "<slow>", EvalGlobal)
	if !v.IsException() {
		v.Free(ctx)
		t.Fatal("expected the first run to exhaust its budget")
	}
	v.Release()
	if err := ctx.ExceptionError(); !strings.Contains(err.Error(), "interrupted") {
		t.Fatalf("first run error = %v, want interrupted", err)
	}

	rt.SetTimeout(0)
	if rt.Timeout() != 0 {
		t.Fatalf("Timeout = %d, want 0", rt.Timeout())
	}
	if got := evalString(t, ctx, js); got != "done" {
		t.Errorf("result = %q, want done", got)
	}
}

func TestRuntime_NestedCallsShareOuterBudget(t *testing.T) {
	rec := &recorder{}
	rt, ctx := newTestRuntime(t, rec, Config{TimeoutMs: 10000})

	var outer, inner time.Time
	rec.onMethod = func(call *MethodCall) {
		outer = rt.CallStart()
		time.Sleep(2 * time.Millisecond)
		v := call.Context.Eval("1", "<nested>", EvalGlobal)
		inner = rt.CallStart()
		call.Result = v
	}
	installMethod(t, ctx, "nested", 0)

	if got := evalString(t, ctx, "nested()"); got != "1" {
		t.Fatalf("nested() = %s, want 1", got)
	}
	if outer.IsZero() {
		t.Fatal("callStart not stamped during the outer call")
	}
	if !inner.Equal(outer) {
		t.Errorf("nested entry restamped callStart: outer %v, inner %v", outer, inner)
	}
	if !rt.CallStart().IsZero() {
		t.Error("callStart still set after the outermost call returned")
	}
}

func TestRuntime_MemoryLimit(t *testing.T) {
	_, ctx := newTestRuntime(t, nil, Config{MemoryLimitMB: 8})
	v := ctx.Eval("new Array(20000000).fill(1).length", "<alloc>", EvalGlobal)
	if !v.IsException() {
		v.Free(ctx)
		t.Fatal("expected allocation over the limit to throw")
	}
	v.Release()
	ctx.ExceptionError()
	if got := evalString(t, ctx, "'still usable'"); got != "still usable" {
		t.Errorf("result = %q", got)
	}
}

func TestRuntime_FreeIsFinal(t *testing.T) {
	rt, err := NewRuntime(nil, 0)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if _, err := rt.NewContext(); err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	rt.Free()
	rt.Free()
	if !rt.Closed() {
		t.Fatal("expected runtime closed")
	}
	if _, err := rt.NewContext(); !errors.Is(err, ErrRuntimeClosed) {
		t.Errorf("NewContext after Free: err = %v, want ErrRuntimeClosed", err)
	}
	if _, err := rt.ExecutePendingJobs(); !errors.Is(err, ErrRuntimeClosed) {
		t.Errorf("ExecutePendingJobs after Free: err = %v, want ErrRuntimeClosed", err)
	}
	if lookupRuntime(rt.id) != nil {
		t.Error("runtime still registered in the handle table")
	}
}

func TestRuntime_ExecutePendingJobs(t *testing.T) {
	rt, ctx := newTestRuntime(t, nil, Config{})
	v := ctx.Eval("globalThis.order = []; Promise.resolve().then(() => order.push('a')).then(() => order.push('b')); order.push('sync')", "<jobs>", EvalGlobal)
	v.Free(ctx)

	n, err := rt.ExecutePendingJobs()
	if err != nil {
		t.Fatalf("ExecutePendingJobs: %v", err)
	}
	if n != 2 {
		t.Errorf("jobs = %d, want 2", n)
	}
	if got := evalString(t, ctx, "order.join(',')"); got != "sync,a,b" {
		t.Errorf("order = %s, want sync,a,b", got)
	}
}

func TestRuntime_RunGCCollectsCycles(t *testing.T) {
	rec := &recorder{}
	rt, ctx := newTestRuntime(t, rec, Config{})
	id := ctx.NewClass("Cycle")
	obj := ctx.NewObjectClass(id, 7)
	setGlobal(t, ctx, "host", obj)

	v := ctx.Eval("{ const a = { h: host }; const b = { a }; a.b = b; host = null; delete globalThis.host; }", "<cycle>", EvalGlobal)
	v.Free(ctx)
	rt.RunGC()
	if len(rec.freed) != 1 {
		t.Fatalf("freed = %d, want 1", len(rec.freed))
	}
}

func TestContext_ToStringAfterFree(t *testing.T) {
	rt, _ := newTestRuntime(t, nil, Config{})
	ctx, err := rt.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.Free()
	ctx.Free()
	v := Undefined()
	defer v.Release()
	if _, err := ctx.ToString(v); !errors.Is(err, ErrContextClosed) {
		t.Errorf("ToString after Free: err = %v, want ErrContextClosed", err)
	}
}

func TestRuntime_RunawayRecursionThrows(t *testing.T) {
	_, ctx := newTestRuntime(t, nil, Config{})
	v := ctx.Eval("function f(n) { return f(n + 1) } f(0)", "<recurse>", EvalGlobal)
	if !v.IsException() {
		v.Free(ctx)
		t.Fatal("expected runaway recursion to throw")
	}
	v.Release()
	err := ctx.ExceptionError()
	var jsErr *Error
	if !errors.As(err, &jsErr) || jsErr.Name != "InternalError" || jsErr.Message != "stack overflow" {
		t.Fatalf("error = %v, want InternalError: stack overflow", err)
	}
	if got := evalString(t, ctx, "'recovered'"); got != "recovered" {
		t.Errorf("result = %q", got)
	}
}

func TestRuntime_StackSlotLimitFromConfig(t *testing.T) {
	_, ctx := newTestRuntime(t, nil, Config{MaxStackSlots: 200})
	v := ctx.Eval("let depth = 0; function g() { depth++; g() } try { g() } catch (e) {} depth", "<depth>", EvalGlobal)
	if v.IsException() {
		t.Fatalf("eval: %v", ctx.ExceptionError())
	}
	defer v.Free(ctx)
	shallow, _ := ctx.ToInt64(v)

	_, deep := newTestRuntime(t, nil, Config{})
	w := deep.Eval("let depth = 0; function g() { depth++; g() } try { g() } catch (e) {} depth", "<depth>", EvalGlobal)
	if w.IsException() {
		t.Fatalf("eval: %v", deep.ExceptionError())
	}
	defer w.Free(deep)
	full, _ := deep.ToInt64(w)

	if shallow <= 0 || shallow >= full {
		t.Errorf("depth with 200 slots = %d, with the default = %d; want 0 < limited < default", shallow, full)
	}
}

func TestContext_UseAfterFreePanics(t *testing.T) {
	rt, _ := newTestRuntime(t, nil, Config{})
	ctx, err := rt.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.Free()

	uses := map[string]func(){
		"Eval":      func() { ctx.Eval("1", "<freed>", EvalGlobal) },
		"NewString": func() { ctx.NewString("x") },
		"NewObject": func() { ctx.NewObject() },
		"NewClass":  func() { ctx.NewClass("Freed") },
		"NewAtom":   func() { ctx.NewAtom("x") },
	}
	for name, use := range uses {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s on a freed context did not panic", name)
				}
			}()
			use()
		}()
	}
	if rt.CallStart() != (time.Time{}) {
		t.Error("callStart left set by a panicking entry point")
	}
}
