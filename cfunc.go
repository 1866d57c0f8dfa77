package jsbridge

import (
	"strings"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// cfunc converts a Go function into the function pointer representation the
// translated engine calls through: the data word of the func value, which
// points at its funcval. f must stay reachable for as long as the engine may
// call it; package-level functions always are.
func cfunc(f any) uintptr {
	type iface [2]uintptr
	return (*iface)(unsafe.Pointer(&f))[1]
}

func ptrOf(p uintptr) unsafe.Pointer {
	return unsafe.Pointer(p)
}

// cstring copies s into libc memory with a trailing NUL. The bridge treats
// allocation failure here as fatal.
func cstring(s string) uintptr {
	p, err := libc.CString(s)
	if err != nil {
		panic("jsbridge: out of memory: " + err.Error())
	}
	return p
}

// goStringN copies n bytes at p.
func goStringN(p uintptr, n int) string {
	if p == 0 || n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(ptrOf(p)), n))
}

// throwInternal raises an InternalError carrying msg in ctx and returns the
// exception sentinel.
func throwInternal(tls *libc.TLS, ctx uintptr, msg string) lib.TJSValue {
	format := cstring(strings.ReplaceAll(msg, "%", "%%"))
	defer libc.Xfree(tls, format)
	return lib.XJS_ThrowInternalError(tls, ctx, format, 0)
}
