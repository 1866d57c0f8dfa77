package host

import (
	"fmt"
	"io"
	"log"

	"github.com/cryguy/jsbridge"
)

// Bind stores obj in the host object table and returns the opaque handle
// that identifies it to the engine.
func (h *Host) Bind(obj any) uintptr {
	h.nextObject++
	h.objects[h.nextObject] = obj
	return h.nextObject
}

// Object returns the Go object bound to handle.
func (h *Host) Object(handle uintptr) (any, bool) {
	obj, ok := h.objects[handle]
	return obj, ok
}

// Objects returns the number of live bound objects.
func (h *Host) Objects() int { return len(h.objects) }

// NewHostObject creates a script object of class className backed by obj.
// When the object is collected obj is dropped from the table and, if it
// implements io.Closer, closed.
func (h *Host) NewHostObject(className string, obj any) (*jsbridge.Value, error) {
	id, err := h.class(className)
	if err != nil {
		return nil, err
	}
	handle := h.Bind(obj)
	v := h.ctx.NewObjectClass(id, handle)
	if v.IsException() {
		v.Release()
		delete(h.objects, handle)
		return nil, fmt.Errorf("creating %s object: %w", className, h.ctx.ExceptionError())
	}
	return v, nil
}

// HostObject returns the Go object behind v if v is a className object.
func (h *Host) HostObject(v *jsbridge.Value, className string) (any, bool) {
	id, ok := h.classes[className]
	if !ok {
		return nil, false
	}
	handle := h.ctx.GetObjectOpaque(v, id)
	if handle == 0 {
		return nil, false
	}
	return h.Object(handle)
}

func (h *Host) class(name string) (jsbridge.ClassID, error) {
	if id, ok := h.classes[name]; ok {
		return id, nil
	}
	id := h.ctx.NewClass(name)
	if id == 0 {
		return 0, fmt.Errorf("registering class %s: %w", name, h.ctx.ExceptionError())
	}
	h.classes[name] = id
	return id, nil
}

func (h *Host) finalizeObject(c *jsbridge.FreeObjectCall) {
	obj, ok := h.objects[c.Opaque]
	if !ok {
		return
	}
	delete(h.objects, c.Opaque)
	if err := closeObject(obj); err != nil {
		log.Printf("host: closing finalized object: %v", err)
	}
}

func closeObject(obj any) error {
	if c, ok := obj.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
