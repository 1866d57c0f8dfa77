package host

import (
	"fmt"
	"strings"

	"github.com/cryguy/jsbridge"
)

// consoleJS builds globalThis.console on top of the Go-backed __console.
const consoleJS = `
(function() {
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) {
					var arg = arguments[j];
					if (typeof arg === 'object' && arg !== null && !(arg instanceof Error)) {
						try { parts.push(JSON.stringify(arg)); } catch (e) { parts.push(String(arg)); }
					} else {
						parts.push(String(arg));
					}
				}
				__console(lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	var counters = {};
	con.count = function(label) {
		var l = label || 'default';
		counters[l] = (counters[l] || 0) + 1;
		con.log(l + ': ' + counters[l]);
	};
	con.countReset = function(label) {
		counters[label || 'default'] = 0;
	};
	con.assert = function(cond) {
		if (!cond) {
			var args = Array.prototype.slice.call(arguments, 1);
			con.error(args.length > 0 ? 'Assertion failed: ' + args.join(' ') : 'Assertion failed');
		}
	};
	var timers = {};
	con.time = function(label) {
		timers[label || 'default'] = Date.now();
	};
	con.timeEnd = function(label) {
		var l = label || 'default';
		if (timers[l] === undefined) { con.warn('Timer "' + l + '" does not exist'); return; }
		con.log(l + ': ' + (Date.now() - timers[l]) + 'ms');
		delete timers[l];
	};
	globalThis.console = con;
})();
`

func (h *Host) setupConsole() error {
	if err := h.Register("__console", func(ctx *jsbridge.Context, _ *jsbridge.Value, args []*jsbridge.Value) *jsbridge.Value {
		h.writeConsole(ArgString(ctx, args, 0), ArgString(ctx, args, 1))
		return nil
	}); err != nil {
		return err
	}
	if _, err := h.Eval(consoleJS, "<console>", false); err != nil {
		return fmt.Errorf("installing console: %w", err)
	}
	return nil
}

func (h *Host) writeConsole(level, msg string) {
	if level == "log" || level == "info" {
		fmt.Fprintln(h.cfg.Console, msg)
		return
	}
	fmt.Fprintf(h.cfg.Console, "[%s] %s\n", strings.ToUpper(level), msg)
}
