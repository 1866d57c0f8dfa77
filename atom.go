package jsbridge

import (
	"fmt"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// Atom is an interned property key. Atoms are reference counted like
// values and released with FreeAtom.
type Atom uint32

// Property flags for DefinePropertyValue (JS_PROP_*).
const (
	PropConfigurable = lib.MJS_PROP_CONFIGURABLE
	PropWritable     = lib.MJS_PROP_WRITABLE
	PropEnumerable   = lib.MJS_PROP_ENUMERABLE
	PropCWE          = lib.MJS_PROP_C_W_E
	PropThrow        = lib.MJS_PROP_THROW // throw instead of returning false
)

// Flags for GetOwnPropertyNames (JS_GPN_*).
const (
	GPNStringMask  = lib.MJS_GPN_STRING_MASK
	GPNSymbolMask  = lib.MJS_GPN_SYMBOL_MASK
	GPNPrivateMask = lib.MJS_GPN_PRIVATE_MASK
	GPNEnumOnly    = lib.MJS_GPN_ENUM_ONLY
)

// NewAtom interns name.
func (c *Context) NewAtom(name string) Atom {
	p := cstring(name)
	defer libc.Xfree(c.rt.tls, p)
	return Atom(lib.XJS_NewAtomLen(c.rt.tls, c.ptr(), p, lib.Tsize_t(len(name))))
}

// ValueToAtom converts v to a property key.
func (c *Context) ValueToAtom(v *Value) Atom {
	return Atom(lib.XJS_ValueToAtom(c.rt.tls, c.ptr(), v.raw()))
}

// AtomToValue returns the string or symbol value named by a.
func (c *Context) AtomToValue(a Atom) *Value {
	return box(lib.XJS_AtomToValue(c.rt.tls, c.ptr(), lib.TJSAtom(a)))
}

// FreeAtom drops a reference to a.
func (c *Context) FreeAtom(a Atom) {
	lib.XJS_FreeAtom(c.rt.tls, c.ptr(), lib.TJSAtom(a))
}

// GetProperty reads obj[a]. Getters run as script.
func (c *Context) GetProperty(obj *Value, a Atom) *Value {
	return box(lib.XGetProperty(c.rt.tls, c.ptr(), obj.raw(), lib.TJSAtom(a)))
}

// DefinePropertyValue defines obj[a] = val with flags. The engine takes the
// reference held by val and its box is released. It returns false (with an
// exception pending) if the definition threw.
func (c *Context) DefinePropertyValue(obj *Value, a Atom, val *Value, flags int) bool {
	raw := val.raw()
	val.Release()
	return lib.XJS_DefinePropertyValue(c.rt.tls, c.ptr(), obj.raw(), lib.TJSAtom(a), raw, int32(flags)) >= 0
}

// PropertyTable is the engine-allocated result of GetOwnPropertyNames. The
// atoms belong to the table until Free.
type PropertyTable struct {
	ctx *Context
	ptr uintptr
	n   int
}

// GetOwnPropertyNames lists the own property keys of obj selected by flags.
func (c *Context) GetOwnPropertyNames(obj *Value, flags int) (*PropertyTable, error) {
	tls := c.rt.tls
	ptab := tls.Alloc(int(unsafe.Sizeof(uintptr(0))))
	defer tls.Free(int(unsafe.Sizeof(uintptr(0))))
	plen := tls.Alloc(int(unsafe.Sizeof(uint32(0))))
	defer tls.Free(int(unsafe.Sizeof(uint32(0))))
	*(*uintptr)(ptrOf(ptab)) = 0
	*(*uint32)(ptrOf(plen)) = 0

	if lib.XJS_GetOwnPropertyNames(tls, c.ptr(), ptab, plen, obj.raw(), int32(flags)) < 0 {
		return nil, fmt.Errorf("listing own properties: %w", c.ExceptionError())
	}
	return &PropertyTable{
		ctx: c,
		ptr: *(*uintptr)(ptrOf(ptab)),
		n:   int(*(*uint32)(ptrOf(plen))),
	}, nil
}

// Len returns the number of entries.
func (t *PropertyTable) Len() int { return t.n }

// At returns the atom of entry i (PropertyEnumGetAtom). The atom is owned
// by the table.
func (t *PropertyTable) At(i int) Atom {
	return PropertyEnumGetAtom(t.ptr, i)
}

// Names converts every entry to a Go string. It stops at the first key
// whose conversion throws.
func (t *PropertyTable) Names() ([]string, error) {
	names := make([]string, 0, t.n)
	for i := 0; i < t.n; i++ {
		v := t.ctx.AtomToValue(t.At(i))
		s, err := t.ctx.ToString(v)
		v.Free(t.ctx)
		if err != nil {
			return nil, fmt.Errorf("converting property key %d: %w", i, err)
		}
		names = append(names, s)
	}
	return names, nil
}

// Free releases the atoms and the table itself.
func (t *PropertyTable) Free() {
	if t.ptr == 0 {
		return
	}
	lib.XJS_FreePropertyEnum(t.ctx.rt.tls, t.ctx.ptr(), t.ptr, uint32(t.n))
	t.ptr, t.n = 0, 0
}

// PropertyEnumGetAtom reads the atom of entry i of a raw JSPropertyEnum
// array.
func PropertyEnumGetAtom(tab uintptr, i int) Atom {
	e := (*lib.TJSPropertyEnum)(ptrOf(tab + uintptr(i)*unsafe.Sizeof(lib.TJSPropertyEnum{})))
	return Atom(e.Fatom)
}
