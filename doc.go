// Package jsbridge embeds the QuickJS engine behind boxed value handles and
// a single host channel.
//
// Every engine value crossing into Go is held by exactly one *Value box.
// Boxes and engine references are owned separately: FreeValue drops the
// reference, Release drops the box. Engine-initiated calls (module loading,
// host methods, unhandled rejections and host object finalization) are all
// delivered to the Channel given to NewRuntime as one of the Call variants.
//
// A Runtime and its contexts must be used from one goroutine at a time.
//
//	rt, err := jsbridge.NewRuntime(ch, 1000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Free()
//
//	ctx, _ := rt.NewContext()
//	v := ctx.Eval("1 + 2", "<eval>", jsbridge.EvalGlobal)
//	defer v.Free(ctx)
package jsbridge
