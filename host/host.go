// Package host is a complete host for the jsbridge channel protocol. It
// owns one runtime and context, resolves imports through a Loader, exposes
// Go functions and objects to script and runs timers and host tasks.
package host

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cryguy/jsbridge"
	"github.com/cryguy/jsbridge/internal/eventloop"
)

// Config configures a Host.
type Config struct {
	jsbridge.Config

	// Loader resolves imported module specifiers. Nil fails every import.
	Loader Loader
	// Console receives console.* output. Nil means os.Stdout.
	Console io.Writer
	// OnRejection is called for every promise rejected without a handler.
	// Nil logs the reason.
	OnRejection func(reason string)
}

// Host implements jsbridge.Channel for a single runtime and context. Like
// the runtime it drives, it must be used from one goroutine at a time.
type Host struct {
	cfg Config
	rt  *jsbridge.Runtime
	ctx *jsbridge.Context
	el  *eventloop.EventLoop

	funcs  map[int64]Func
	nextFn int64

	objects    map[uintptr]any
	nextObject uintptr
	classes    map[string]jsbridge.ClassID

	tasks    map[int]task
	nextTask int

	fireTimer *jsbridge.Value // returned by the timers installer

	rejections    int
	lastRejection string

	closed bool
}

// New creates a host with its runtime, context and standard globals.
func New(cfg Config) (*Host, error) {
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}
	h := &Host{
		cfg:     cfg,
		el:      eventloop.New(),
		funcs:   make(map[int64]Func),
		objects: make(map[uintptr]any),
		classes: make(map[string]jsbridge.ClassID),
		tasks:   make(map[int]task),
	}
	rt, err := jsbridge.NewRuntimeWithConfig(h, cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("creating runtime: %w", err)
	}
	ctx, err := rt.NewContext()
	if err != nil {
		rt.Free()
		return nil, fmt.Errorf("creating context: %w", err)
	}
	h.rt, h.ctx = rt, ctx

	for _, setup := range []func() error{h.setupConsole, h.setupTimers} {
		if err := setup(); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

// Runtime returns the underlying runtime.
func (h *Host) Runtime() *jsbridge.Runtime { return h.rt }

// Context returns the host's context.
func (h *Host) Context() *jsbridge.Context { return h.ctx }

// Rejections returns the number of unhandled rejections seen so far.
func (h *Host) Rejections() int { return h.rejections }

// Dispatch implements jsbridge.Channel.
func (h *Host) Dispatch(call jsbridge.Call) {
	switch c := call.(type) {
	case *jsbridge.ModuleCall:
		h.loadModule(c)
	case *jsbridge.MethodCall:
		h.callFunc(c)
	case *jsbridge.PromiseTrackCall:
		h.trackRejection(c)
	case *jsbridge.FreeObjectCall:
		h.finalizeObject(c)
	}
}

func (h *Host) loadModule(c *jsbridge.ModuleCall) {
	if h.cfg.Loader == nil {
		return
	}
	src, err := h.cfg.Loader.Load(c.Specifier)
	if err != nil {
		if !isNotFound(err) {
			log.Printf("host: loading module %q: %v", c.Specifier, err)
		}
		return
	}
	c.Source = src
}

func (h *Host) trackRejection(c *jsbridge.PromiseTrackCall) {
	reason, err := c.Context.ToString(c.Reason)
	if err != nil {
		reason = "<unprintable reason>"
	}
	h.rejections++
	h.lastRejection = reason
	if h.cfg.OnRejection != nil {
		h.cfg.OnRejection(reason)
		return
	}
	log.Printf("host: unhandled promise rejection: %s", reason)
}

// Eval evaluates src and returns its completion value as a string. Module
// code always yields "" and runs its pending jobs before returning so that
// top-level await and import failures surface here.
func (h *Host) Eval(src, filename string, module bool) (string, error) {
	if h.closed {
		return "", jsbridge.ErrRuntimeClosed
	}
	flags := jsbridge.EvalGlobal
	if module {
		flags = jsbridge.EvalModule
	}
	before := h.rejections
	v := h.ctx.Eval(src, filename, flags)
	if v.IsException() {
		v.Release()
		return "", fmt.Errorf("evaluating %s: %w", filename, h.ctx.ExceptionError())
	}
	defer v.Free(h.ctx)

	if !module {
		return h.ctx.ToString(v)
	}
	if _, err := h.rt.ExecutePendingJobs(); err != nil {
		return "", fmt.Errorf("evaluating %s: %w", filename, err)
	}
	if h.ctx.IsPromise(v) && h.ctx.PromiseState(v) == jsbridge.PromiseRejected {
		reason := "module evaluation failed"
		if h.rejections > before {
			reason = h.lastRejection
		}
		return "", fmt.Errorf("evaluating %s: %s", filename, reason)
	}
	return "", nil
}

// EvalModuleFile reads path and evaluates it as a module. TypeScript
// sources are transformed first. The module is named by its base name so
// relative imports resolve against the loader's root.
func (h *Host) EvalModuleFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	src := string(data)
	name := filepath.Base(path)
	if isTypeScript(name) {
		if src, err = Transform(src, name); err != nil {
			return err
		}
	}
	_, err = h.Eval(src, name, true)
	return err
}

// Run pumps promise jobs, timers and host tasks until nothing is pending
// or ctx is done.
func (h *Host) Run(ctx context.Context) error {
	if h.closed {
		return jsbridge.ErrRuntimeClosed
	}
	h.RunMicrotasks()
	return h.el.Drain(ctx, h)
}

// RunMicrotasks drains the promise job queue, logging a job that throws.
func (h *Host) RunMicrotasks() {
	for {
		_, err := h.rt.ExecutePendingJobs()
		if err == nil {
			return
		}
		log.Printf("host: %v", err)
	}
}

// Close frees the runtime and closes any bound objects the collector did
// not finalize.
func (h *Host) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.el.Reset()
	h.freeTasks()
	if h.fireTimer != nil {
		h.fireTimer.Free(h.ctx)
		h.fireTimer = nil
	}
	h.rt.Free()

	var errs []string
	for handle, obj := range h.objects {
		delete(h.objects, handle)
		if err := closeObject(obj); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing host objects: %s", strings.Join(errs, "; "))
	}
	return nil
}

func isTypeScript(name string) bool {
	switch filepath.Ext(name) {
	case ".ts", ".tsx", ".mts", ".jsx":
		return true
	}
	return false
}
