// Package routine implements the per-attribute transform registration
// of SPEC_FULL.md §4.11, generalized from vxpy/core/routine.py: a
// Routine consumes one producing attribute's writes and may declare
// and publish its own derived attributes.
package routine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/zap"

	"vxcore/internal/attribute"
)

// Routine is a named transform attached to one producing attribute.
// Attach is called once during worker setup (via Registry.AttachAll) to
// let the routine declare its derived attributes against the shared
// store. Process runs synchronously each time the producer calls
// Registry.Dispatch for the attribute it is registered against; a write
// to the attribute does not by itself invoke it. A producer that calls
// Dispatch right after its raw write, inside its tick iteration, runs
// it before trigger evaluation, mirroring
// vxpy/routines/camera/zf_tracking.py's placement inside Camera.execute.
type Routine interface {
	Name() string
	Attach(store *attribute.Store) error
	Process(idx int64, ts time.Time, value any) error
}

// Registry binds routines to the attribute names they consume.
type Registry struct {
	mu     sync.Mutex
	byAttr map[string][]Routine
	logger *zap.SugaredLogger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byAttr: make(map[string][]Routine)}
}

// SetLogger attaches the owning worker's logger so a routine's
// processing failures go through that logger (and its websocket sink)
// instead of the standard log package.
func (r *Registry) SetLogger(logger *zap.SugaredLogger) { r.logger = logger }

// Register installs rt against attrName. RegisterRoutine in
// SPEC_FULL.md §4.11's terms.
func (r *Registry) Register(attrName string, rt Routine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAttr[attrName] = append(r.byAttr[attrName], rt)
}

// AttachAll calls Attach on every registered routine against store,
// stopping at the first failure (a routine's derived-attribute
// declaration is expected to succeed or the worker fails setup).
func (r *Registry) AttachAll(store *attribute.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for attrName, routines := range r.byAttr {
		for _, rt := range routines {
			if err := rt.Attach(store); err != nil {
				return fmt.Errorf("routine %q attached to %q: %w", rt.Name(), attrName, err)
			}
		}
	}
	return nil
}

// Dispatch runs every routine registered against attrName. Errors are
// logged and otherwise swallowed: a routine failure never blocks the
// producing attribute's write path (SPEC_FULL §4.11).
func (r *Registry) Dispatch(attrName string, idx int64, ts time.Time, value any) {
	r.mu.Lock()
	routines := append([]Routine(nil), r.byAttr[attrName]...)
	r.mu.Unlock()
	for _, rt := range routines {
		if err := rt.Process(idx, ts, value); err != nil {
			if r.logger != nil {
				r.logger.Warnf("routine %q: processing %q index %d: %v", rt.Name(), attrName, idx, err)
				continue
			}
			log.Printf("routine %q: processing %q index %d: %v", rt.Name(), attrName, idx, err)
		}
	}
}
