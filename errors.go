package jsbridge

import (
	"fmt"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// Error is a script exception converted to a Go error.
type Error struct {
	Name    string // "Error", "TypeError", ... or empty for a thrown non-error
	Message string
	Stack   string
}

func (e *Error) Error() string {
	if e.Name == "" {
		return "uncaught exception: " + e.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ExceptionError takes the pending exception out of c and converts it. If
// no exception is pending it still returns a non-nil *Error so callers can
// use it directly after seeing the exception sentinel.
func (c *Context) ExceptionError() error {
	if err := c.takeException(); err != nil {
		return err
	}
	return &Error{Message: "exception sentinel with no pending exception"}
}

// takeException clears the pending exception, returning nil if there was
// none. Reading name, message and stack can run script (getters, a thrown
// object's toString), so the conversion is timed like Eval; once the budget
// is spent the remaining fields are left empty.
func (c *Context) takeException() error {
	r := c.rt
	r.enter()
	defer r.leave()

	tls := r.tls
	tripped := r.interrupted()
	exc := lib.XJS_GetException(tls, c.ptr())
	switch rawTag(exc) {
	case TagNull, TagUninitialized:
		return nil
	}
	defer lib.XFreeValue(tls, c.ptr(), exc)

	e := &Error{}
	if lib.XJS_IsError(tls, c.ptr(), exc) != 0 {
		for _, f := range []struct {
			name string
			dst  *string
		}{{"name", &e.Name}, {"message", &e.Message}, {"stack", &e.Stack}} {
			if !tripped && r.interrupted() {
				break
			}
			*f.dst = c.propString(exc, f.name)
		}
		return e
	}
	e.Message = c.plainString(exc)
	return e
}

// propString reads obj[name] as a string, or "" if it is undefined. A
// throwing getter yields the placeholder.
func (c *Context) propString(obj lib.TJSValue, name string) string {
	tls := c.rt.tls
	p := cstring(name)
	defer libc.Xfree(tls, p)
	v := lib.XJS_GetPropertyStr(tls, c.ptr(), obj, p)
	switch rawTag(v) {
	case TagUndefined:
		return ""
	case TagException:
		lib.XFreeValue(tls, c.ptr(), lib.XJS_GetException(tls, c.ptr()))
		return unprintable
	}
	defer lib.XFreeValue(tls, c.ptr(), v)
	return c.plainString(v)
}

const unprintable = "<unprintable exception>"

// plainString stringifies v without recursing into exception conversion: a
// throwing or interrupted toString yields the placeholder.
func (c *Context) plainString(v lib.TJSValue) string {
	tls := c.rt.tls
	s := lib.XJS_ToCStringLen2(tls, c.ptr(), 0, v, 0)
	if s == 0 {
		lib.XFreeValue(tls, c.ptr(), lib.XJS_GetException(tls, c.ptr()))
		return unprintable
	}
	defer lib.XJS_FreeCString(tls, c.ptr(), s)
	return libc.GoString(s)
}
