// Command jsbridge runs scripts and modules on the bridge, or serves a
// WebSocket REPL with one isolated runtime per connection.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cryguy/jsbridge"
	"github.com/cryguy/jsbridge/host"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		usage(stderr)
		return fmt.Errorf("no command given")
	}
	switch args[0] {
	case "run":
		return runCommand(args[1:], stdout, stderr)
	case "serve":
		return serveCommand(args[1:], stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: jsbridge <command> [options]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	_, _ = fmt.Fprintln(w, "  run    evaluate a script or module file")
	_, _ = fmt.Fprintln(w, "  serve  serve a WebSocket REPL")
}

// envInt returns the integer in environment variable key, or def.
func envInt(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type runOptions struct {
	timeoutMs int64
	memoryMB  int64
	modules   string
	db        string
	module    bool
	bundle    bool
	wait      time.Duration
}

func runCommand(args []string, stdout, stderr io.Writer) error {
	var opts runOptions
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "Usage: jsbridge run [options] file")
		_, _ = fmt.Fprintln(stderr, "")
		_, _ = fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	fs.Int64Var(&opts.timeoutMs, "timeout", envInt("JSBRIDGE_TIMEOUT_MS", 0), "execution budget per call in milliseconds (0 disables)")
	fs.Int64Var(&opts.memoryMB, "memory", envInt("JSBRIDGE_MEMORY_MB", 0), "engine heap limit in MB (0 is unlimited)")
	fs.StringVar(&opts.modules, "modules", envString("JSBRIDGE_MODULES", ""), "directory imports resolve against (default: the file's directory)")
	fs.StringVar(&opts.db, "db", envString("JSBRIDGE_MODULE_DB", ""), "SQLite module database consulted after the module directory")
	fs.BoolVar(&opts.module, "module", false, "evaluate the file as an ES module (implied by .mjs and TypeScript files)")
	fs.BoolVar(&opts.bundle, "bundle", false, "bundle the file and its imports with esbuild before evaluating")
	fs.DurationVar(&opts.wait, "wait", 30*time.Second, "how long to keep running timers and tasks after evaluation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("run takes exactly one file")
	}
	path := fs.Arg(0)

	loader, closeLoader, err := opts.loader(path)
	if err != nil {
		return err
	}
	defer closeLoader()

	h, err := host.New(host.Config{
		Config: jsbridge.Config{
			TimeoutMs:     opts.timeoutMs,
			MemoryLimitMB: int(opts.memoryMB),
		},
		Loader:  loader,
		Console: stdout,
	})
	if err != nil {
		return err
	}
	defer h.Close()

	if err := evalFile(h, path, opts); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.wait)
	defer cancel()
	if err := h.Run(ctx); err != nil {
		return fmt.Errorf("running event loop: %w", err)
	}
	if n := h.Rejections(); n > 0 {
		return fmt.Errorf("%d unhandled promise rejection(s)", n)
	}
	return nil
}

func (o runOptions) loader(path string) (host.Loader, func(), error) {
	root := o.modules
	if root == "" {
		root = filepath.Dir(path)
	}
	var chain host.ChainLoader
	chain = append(chain, host.TransformLoader{Loader: host.DirLoader{Root: root}})
	closer := func() {}
	if o.db != "" {
		db, err := host.OpenSQLiteLoader(o.db)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, host.TransformLoader{Loader: db})
		closer = func() { _ = db.Close() }
	}
	return chain, closer, nil
}

func evalFile(h *host.Host, path string, opts runOptions) error {
	if opts.bundle {
		src, err := host.Bundle(path)
		if err != nil {
			return err
		}
		_, err = h.Eval(src, filepath.Base(path), true)
		return err
	}
	switch filepath.Ext(path) {
	case ".mjs", ".ts", ".mts", ".tsx", ".jsx":
		opts.module = true
	}
	if opts.module {
		return h.EvalModuleFile(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	_, err = h.Eval(string(data), filepath.Base(path), false)
	return err
}
