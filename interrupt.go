package jsbridge

import (
	"time"

	"modernc.org/libc"
)

var interruptHandlerFP = cfunc(interruptHandler)

// interruptHandler is polled by the engine at its own interrupt points. A
// non-zero return makes the engine raise an uncatchable "interrupted"
// InternalError.
func interruptHandler(tls *libc.TLS, rt uintptr, opaque uintptr) int32 {
	r := lookupRuntime(opaque)
	if r == nil {
		return 0
	}
	if r.block.expired(time.Now()) {
		return 1
	}
	return 0
}

// expired applies the timeout policy. Tripping resets callStart so the
// abort fires once per window.
func (b *runtimeBlock) expired(now time.Time) bool {
	if b.timeoutMs == 0 || b.callStart.IsZero() {
		return false
	}
	if now.Sub(b.callStart) <= time.Duration(b.timeoutMs)*time.Millisecond {
		return false
	}
	b.callStart = time.Time{}
	return true
}
