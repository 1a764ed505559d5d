// Package replicated holds single-writer values that mirror authority state
// onto replicas.
package replicated

import (
	"errors"
	"sync"
)

// Role identifies which side of the session a value lives on.
type Role int

const (
	RoleAuthority Role = iota
	RoleReplica
)

func (r Role) String() string {
	if r == RoleAuthority {
		return "authority"
	}
	return "replica"
}

var (
	// ErrNotAuthority is returned when a replica attempts an authoritative write.
	ErrNotAuthority = errors.New("replicated: write requires authority")
	// ErrNotReplica is returned when the authority is handed a broadcast to apply.
	ErrNotReplica = errors.New("replicated: apply requires replica")
)

// Observer receives the value before and after an accepted write.
type Observer[T any] func(previous, next T)

type observerEntry[T any] struct {
	id uint64
	fn Observer[T]
}

// Value is a replicated cell. The authority writes it, replicas receive
// writes through Apply. Observers run once per accepted write, including
// writes that leave the value unchanged.
type Value[T any] struct {
	mu        sync.RWMutex
	role      Role
	current   T
	observers []observerEntry[T]
	nextID    uint64
	request   func(T)
}

// New creates a value holding initial on the given side.
func New[T any](role Role, initial T) *Value[T] {
	return &Value[T]{role: role, current: initial}
}

// Role reports whether the value lives on the authority or a replica.
func (v *Value[T]) Role() Role {
	return v.role
}

// Get returns the last accepted value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// SetFromAuthority writes next and notifies observers.
func (v *Value[T]) SetFromAuthority(next T) error {
	if v.role != RoleAuthority {
		return ErrNotAuthority
	}
	v.write(next)
	return nil
}

// Apply installs a value received from the authority.
func (v *Value[T]) Apply(next T) error {
	if v.role != RoleReplica {
		return ErrNotReplica
	}
	v.write(next)
	return nil
}

// SetRequestSink installs the forwarder replicas use for RequestSet.
func (v *Value[T]) SetRequestSink(fn func(T)) {
	v.mu.Lock()
	v.request = fn
	v.mu.Unlock()
}

// RequestSet asks for next to become the value. On the authority the write is
// applied directly. On a replica it is forwarded to the request sink and the
// local value stays unchanged until the authority echoes it back.
func (v *Value[T]) RequestSet(next T) {
	if v.role == RoleAuthority {
		v.write(next)
		return
	}
	v.mu.RLock()
	sink := v.request
	v.mu.RUnlock()
	if sink != nil {
		sink(next)
	}
}

// Subscribe registers fn and returns a function removing it.
func (v *Value[T]) Subscribe(fn Observer[T]) func() {
	if fn == nil {
		return func() {}
	}
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.observers = append(v.observers, observerEntry[T]{id: id, fn: fn})
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			for i, entry := range v.observers {
				if entry.id == id {
					v.observers = append(v.observers[:i:i], v.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (v *Value[T]) write(next T) {
	v.mu.Lock()
	previous := v.current
	v.current = next
	observers := append([]observerEntry[T](nil), v.observers...)
	v.mu.Unlock()

	for _, entry := range observers {
		entry.fn(previous, next)
	}
}
