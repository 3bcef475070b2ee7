package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/goliatone/go-repository-redis/document"
)

type ownerState int

const (
	ownerIdle ownerState = iota
	ownerStarting
	ownerRunning
	ownerDisabled
)

// owner is the part of a repository the registry needs once it runs.
type owner interface {
	Close(ctx context.Context) error
}

type ownerSlot struct {
	state   ownerState
	factory func(rt *Runtime) (owner, error)
	owner   owner
}

// OwnerRegistry keeps, per document type, the single repository that
// subscribes to every change of the type and keeps the local cache fresh.
// Short lived repositories created per request never subscribe themselves.
type OwnerRegistry struct {
	mu    sync.Mutex
	slots map[reflect.Type]*ownerSlot
}

// NewOwnerRegistry creates an empty registry.
func NewOwnerRegistry() *OwnerRegistry {
	return &OwnerRegistry{slots: make(map[reflect.Type]*ownerSlot)}
}

// RegisterInvalidationOwner declares how to build the invalidation owner
// of T. It is built the first time a repository of T is created, and
// subscribed to every key of the type when its caching is enabled.
func RegisterInvalidationOwner[T any, PT document.Pointer[T]](reg *OwnerRegistry, factory func(rt *Runtime) (*Repository[T, PT], error)) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	t := reflect.TypeFor[T]()
	slot := reg.slot(t)
	if slot.state != ownerIdle {
		return
	}
	slot.factory = func(rt *Runtime) (owner, error) {
		r, err := factory(rt)
		if err != nil {
			return nil, err
		}
		if r.opts.EnableCaching {
			if err := r.Subscribe(context.Background(), "*", r.opts.SubscriptionMode); err != nil {
				_ = r.Close(context.Background())
				return nil, err
			}
		}
		return r, nil
	}
}

// Disable opts T out of automatic invalidation subscriptions.
func Disable[T any](reg *OwnerRegistry) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.slot(reflect.TypeFor[T]()).state = ownerDisabled
}

// Owner returns the running invalidation owner of T, if any. Attach event
// listeners to it to observe changes made by other processes.
func Owner[T any, PT document.Pointer[T]](reg *OwnerRegistry) (*Repository[T, PT], bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	slot, ok := reg.slots[reflect.TypeFor[T]()]
	if !ok || slot.state != ownerRunning {
		return nil, false
	}
	r, ok := slot.owner.(*Repository[T, PT])
	return r, ok
}

// Running reports whether the owner of type t is running.
func (reg *OwnerRegistry) Running(t reflect.Type) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	slot, ok := reg.slots[t]
	return ok && slot.state == ownerRunning
}

func (reg *OwnerRegistry) slot(t reflect.Type) *ownerSlot {
	slot, ok := reg.slots[t]
	if !ok {
		slot = &ownerSlot{}
		reg.slots[t] = slot
	}
	return slot
}

// ensure starts the owner of t once. Repositories built by the factory call
// ensure again and find the slot starting. Types without a factory are
// disabled quietly.
func (reg *OwnerRegistry) ensure(t reflect.Type, rt *Runtime, logger *slog.Logger) {
	reg.mu.Lock()
	slot := reg.slot(t)
	if slot.state != ownerIdle {
		reg.mu.Unlock()
		return
	}
	if slot.factory == nil {
		slot.state = ownerDisabled
		reg.mu.Unlock()
		logger.Debug("no invalidation owner registered, auto subscription disabled", "type", t.String())
		return
	}
	slot.state = ownerStarting
	factory := slot.factory
	reg.mu.Unlock()

	o, err := factory(rt)

	reg.mu.Lock()
	if err != nil {
		slot.state = ownerDisabled
		reg.mu.Unlock()
		logger.Warn("invalidation owner failed to start", "type", t.String(), "error", err)
		rt.report(fmt.Errorf("repository: start invalidation owner for %s: %w", t, err))
		return
	}
	slot.owner = o
	slot.state = ownerRunning
	reg.mu.Unlock()
	logger.Debug("invalidation owner running", "type", t.String())
}

// Close closes every running owner.
func (reg *OwnerRegistry) Close(ctx context.Context) error {
	reg.mu.Lock()
	var owners []owner
	for _, slot := range reg.slots {
		if slot.state == ownerRunning {
			owners = append(owners, slot.owner)
			slot.owner = nil
			slot.state = ownerDisabled
		}
	}
	reg.mu.Unlock()

	var errs []error
	for _, o := range owners {
		errs = append(errs, o.Close(ctx))
	}
	return errors.Join(errs...)
}
