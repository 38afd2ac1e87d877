package attribute

import (
	"fmt"
	"sort"
	"sync"
)

// Store is the process-wide registry of declared attributes. One
// Store is shared by every worker; declaration happens once at setup,
// before any worker that uses the attribute starts ticking (spec.md
// §4.4).
type Store struct {
	mu    sync.RWMutex
	attrs map[string]Attribute
}

// NewStore returns an empty attribute registry.
func NewStore() *Store {
	return &Store{attrs: make(map[string]Attribute)}
}

// DeclareArray registers (or re-resolves) an array attribute. It is a
// no-op returning the existing handle if name is already declared with
// an identical descriptor, and fails with ErrAlreadyDeclared if the
// descriptor differs.
func DeclareArray[T Numeric](s *Store, name string, shape []int, capacity int) (*ArrayHandle[T], error) {
	if capacity <= 0 {
		capacity = 1000 // spec.md §3 default N
	}
	want := Descriptor{Name: name, Kind: KindArray, Shape: shape, Dtype: dtypeOf[T](), Capacity: capacity}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.attrs[name]; ok {
		if !existing.Descriptor().equal(want) {
			return nil, fmt.Errorf("%w: %q has %v, requested %v", ErrAlreadyDeclared, name, existing.Descriptor(), want)
		}
		arr, ok := existing.(*ArrayAttribute[T])
		if !ok {
			return nil, fmt.Errorf("%w: %q was declared with a different element type", ErrAlreadyDeclared, name)
		}
		return &ArrayHandle[T]{attr: arr}, nil
	}
	attr := newArrayAttribute[T](name, shape, capacity)
	s.attrs[name] = attr
	return &ArrayHandle[T]{attr: attr}, nil
}

// DeclareObject registers (or re-resolves) an object attribute.
func DeclareObject(s *Store, name string, capacity int) (*ObjectHandle, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	want := Descriptor{Name: name, Kind: KindObject, Capacity: capacity}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.attrs[name]; ok {
		if !existing.Descriptor().equal(want) {
			return nil, fmt.Errorf("%w: %q has %v, requested %v", ErrAlreadyDeclared, name, existing.Descriptor(), want)
		}
		obj, ok := existing.(*ObjectAttribute)
		if !ok {
			return nil, fmt.Errorf("%w: %q was declared as an array attribute", ErrAlreadyDeclared, name)
		}
		return &ObjectHandle{attr: obj}, nil
	}
	attr := newObjectAttribute(name, capacity)
	s.attrs[name] = attr
	return &ObjectHandle{attr: attr}, nil
}

// Lookup resolves a previously-declared attribute by name for
// consumers that only need the type-erased Attribute view (the
// trigger engine, the recorder).
func (s *Store) Lookup(name string) (Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attrs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return a, nil
}

// Names returns every declared attribute name in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.attrs))
	for n := range s.attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
