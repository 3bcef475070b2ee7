package repository

import (
	"context"
	"sync"
)

// Listener receives a document decoded from a change notification.
type Listener[PT any] func(ctx context.Context, doc PT)

type observer[PT any] struct {
	id int
	fn Listener[PT]
}

// observers calls listeners synchronously in registration order.
type observers[PT any] struct {
	mu     sync.Mutex
	nextID int
	list   []observer[PT]
}

func (o *observers[PT]) add(fn Listener[PT]) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	o.list = append(o.list, observer[PT]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

func (o *observers[PT]) remove(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, obs := range o.list {
		if obs.id == id {
			o.list = append(o.list[:i:i], o.list[i+1:]...)
			return
		}
	}
}

func (o *observers[PT]) emit(ctx context.Context, doc PT) {
	o.mu.Lock()
	list := o.list
	o.mu.Unlock()

	for _, obs := range list {
		obs.fn(ctx, doc)
	}
}

func (o *observers[PT]) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = nil
}
