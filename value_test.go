package jsbridge

import (
	"strings"
	"testing"
)

func mustPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		p := recover()
		if p == nil {
			t.Fatalf("expected panic containing %q", want)
		}
		if s, _ := p.(string); !strings.Contains(s, want) {
			t.Errorf("panic = %v, want it to contain %q", p, want)
		}
	}()
	fn()
}

func TestValue_ReleaseTwicePanics(t *testing.T) {
	v := Undefined()
	v.Release()
	if !v.Released() {
		t.Fatal("expected box to report released")
	}
	mustPanic(t, "released twice", v.Release)
}

func TestValue_UseAfterReleasePanics(t *testing.T) {
	v := Null()
	v.Release()
	mustPanic(t, "released value handle", func() { _ = v.Tag() })
}

func TestValue_NilHandleIsUndefined(t *testing.T) {
	var v *Value
	if !v.IsUndefined() {
		t.Errorf("nil handle tag = %d, want undefined", v.Tag())
	}
}

func TestValue_SentinelsAreFreshBoxes(t *testing.T) {
	a, b := Undefined(), Undefined()
	if a == b {
		t.Fatal("expected distinct boxes for undefined")
	}
	a.Release()
	if b.Released() {
		t.Fatal("releasing one box released the other")
	}
	if !Exception().IsException() {
		t.Error("Exception() is not the exception sentinel")
	}
	if !Null().IsNull() {
		t.Error("Null() is not null")
	}
}

func TestValue_DupThenFreeKeepsRefCount(t *testing.T) {
	_, ctx := newTestRuntime(t, nil, Config{})
	obj := ctx.NewObject()
	defer obj.Free(ctx)

	before := refCount(obj.raw())
	dup := ctx.DupValue(obj)
	if got := refCount(obj.raw()); got != before+1 {
		t.Fatalf("refcount after dup = %d, want %d", got, before+1)
	}
	if dup.Ptr() != obj.Ptr() {
		t.Fatal("dup points at a different object")
	}
	ctx.FreeValue(dup, false)
	if got := refCount(obj.raw()); got != before {
		t.Errorf("refcount after dup+free = %d, want %d", got, before)
	}
	if dup.Released() {
		t.Error("box released although alsoFreeBox was false")
	}
	dup.Release()
}

func TestValue_RuntimeLevelDupFree(t *testing.T) {
	rt, ctx := newTestRuntime(t, nil, Config{})
	s := ctx.NewString("held by the runtime")
	defer s.Free(ctx)

	before := refCount(s.raw())
	dup := rt.DupValueRT(s)
	rt.FreeValueRT(dup, true)
	if got := refCount(s.raw()); got != before {
		t.Errorf("refcount = %d, want %d", got, before)
	}
	if !dup.Released() {
		t.Error("expected box released")
	}
}

func TestValue_ImmediatesHaveNoRefCount(t *testing.T) {
	_, ctx := newTestRuntime(t, nil, Config{})
	for _, v := range []*Value{ctx.NewBool(true), ctx.NewInt64(5), Undefined(), Null()} {
		if hasRefCount(v.raw()) {
			t.Errorf("tag %d unexpectedly reference counted", v.Tag())
		}
		v.Free(ctx)
	}
}

func TestValue_NumberTags(t *testing.T) {
	_, ctx := newTestRuntime(t, nil, Config{})
	cases := []struct {
		v    *Value
		want Tag
	}{
		{ctx.NewInt64(42), TagInt},
		{ctx.NewInt64(1 << 40), TagFloat64},
		{ctx.NewFloat64(3), TagInt},
		{ctx.NewFloat64(3.5), TagFloat64},
	}
	for i, c := range cases {
		if got := c.v.Tag(); got != c.want {
			t.Errorf("case %d: tag = %d, want %d", i, got, c.want)
		}
		c.v.Free(ctx)
	}
	if !TagIsFloat64(TagFloat64) || TagIsFloat64(TagInt) {
		t.Error("TagIsFloat64 misclassifies tags")
	}
}

func TestValue_FreeValueRTAfterContextFree(t *testing.T) {
	rec := &recorder{}
	rt, _ := newTestRuntime(t, rec, Config{})
	ctx, err := rt.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	id := ctx.NewClass("Orphan")
	obj := ctx.NewObjectClass(id, 0x77)
	str := ctx.NewString("outlives its context")
	ctx.Free()

	rt.FreeValueRT(str, true)
	rt.FreeValueRT(obj, true)
	rt.RunGC()
	if !obj.Released() || !str.Released() {
		t.Error("expected boxes released")
	}
	if len(rec.freed) != 1 || rec.freed[0].Opaque != 0x77 {
		t.Errorf("freed = %+v, want one FREE_OBJECT with opaque 0x77", rec.freed)
	}
}
