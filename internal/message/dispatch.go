package message

import (
	"log"
	"sync"

	"go.uber.org/zap"
)

// Callable is the signature every RPC-registered function must have.
// Errors are logged by the dispatcher, not returned to the caller:
// spec.md §4.3 is explicit that RPC is fire-and-forget with no reply
// channel.
type Callable func(args []any, kwargs map[string]any) error

// Dispatcher resolves RPC signals against a table keyed by a stable
// string, per spec.md §4.3 / §9 ("RPC registration... Keep a stable
// string key scheme (e.g., ModuleName.function_name) registered at
// worker startup; reject unknown keys.").
type Dispatcher struct {
	mu     sync.RWMutex
	table  map[string]Callable
	logger *zap.SugaredLogger
}

// NewDispatcher returns an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{table: make(map[string]Callable)}
}

// SetLogger attaches the owning worker's logger so unknown-callable and
// callback-error warnings go through that logger (and its websocket
// sink) instead of the standard log package.
func (d *Dispatcher) SetLogger(logger *zap.SugaredLogger) { d.logger = logger }

// Register installs fn under key, overwriting any previous
// registration. Keys are conventionally "Worker.MethodName".
func (d *Dispatcher) Register(key string, fn Callable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table[key] = fn
}

// Dispatch resolves msg.Callable and invokes it. Unknown keys are
// logged and discarded, matching spec.md §7's "RPC to unknown
// callback: log warning, drop" policy.
func (d *Dispatcher) Dispatch(msg ControlMessage) {
	d.mu.RLock()
	fn, ok := d.table[msg.Callable]
	d.mu.RUnlock()
	if !ok {
		d.logf("message: RPC from %s: unknown callable %q, dropping", msg.Sender, msg.Callable)
		return
	}
	if err := fn(msg.Args, msg.Kwargs); err != nil {
		d.logf("message: RPC %q from %s failed: %v", msg.Callable, msg.Sender, err)
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Warnf(format, args...)
		return
	}
	log.Printf(format, args...)
}
