package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-redis/backend/memory"
	"github.com/goliatone/go-repository-redis/pkg/testsupport"
)

func memberOwner(opts ...func(*Options)) func(rt *Runtime) (*Repository[Member, *Member], error) {
	return func(rt *Runtime) (*Repository[Member, *Member], error) {
		o := memberOptions()
		for _, fn := range opts {
			fn(&o)
		}
		return New[Member](rt, o)
	}
}

func TestOwner_StartsWithFirstRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	RegisterInvalidationOwner(f.rt.Owners, memberOwner())

	assert.False(t, f.rt.Owners.Running(reflect.TypeFor[Member]()))
	assert.Equal(t, 0, f.srv.Subscribers())

	r := f.members(t)
	f.members(t)

	assert.True(t, f.rt.Owners.Running(reflect.TypeFor[Member]()))
	assert.Equal(t, 1, f.srv.Subscribers())
	assert.Empty(t, r.Subscriptions(), "request scoped repositories do not subscribe")

	owner, ok := Owner[Member](f.rt.Owners)
	require.True(t, ok)
	assert.Equal(t, map[SubscriptionMode][]string{Keyspace: {"member:*"}}, owner.Subscriptions())

	events := &eventLog{}
	events.watch(owner)
	f.put(t, stampedMember("member:a", "A", epoch))
	assert.Equal(t, []string{"changed:A", "triggered:A"}, events.all())

	m, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", m.Title)
	assert.Equal(t, 1, f.srv.Calls(memory.OpGet))

	require.NoError(t, f.rt.Close(ctx))
	assert.Equal(t, 0, f.srv.Subscribers())
	_, ok = Owner[Member](f.rt.Owners)
	assert.False(t, ok)
}

func TestOwner_UsesConfiguredMode(t *testing.T) {
	f := newFixture(t)
	RegisterInvalidationOwner(f.rt.Owners, memberOwner(func(o *Options) { o.SubscriptionMode = PubSub }))
	f.members(t)

	owner, ok := Owner[Member](f.rt.Owners)
	require.True(t, ok)
	assert.Equal(t, map[SubscriptionMode][]string{PubSub: {"member:*"}}, owner.Subscriptions())
}

func TestOwner_CachingDisabledDoesNotSubscribe(t *testing.T) {
	f := newFixture(t)
	RegisterInvalidationOwner(f.rt.Owners, memberOwner(func(o *Options) { o.EnableCaching = false }))
	f.members(t)

	assert.True(t, f.rt.Owners.Running(reflect.TypeFor[Member]()))
	assert.Equal(t, 0, f.srv.Subscribers())
}

func TestOwner_NoFactoryDisablesType(t *testing.T) {
	f := newFixture(t)
	f.members(t)

	RegisterInvalidationOwner(f.rt.Owners, memberOwner())
	f.members(t)

	assert.False(t, f.rt.Owners.Running(reflect.TypeFor[Member]()))
	assert.Equal(t, 0, f.srv.Subscribers())
	assert.Empty(t, f.errs.all())
}

func TestOwner_Disable(t *testing.T) {
	f := newFixture(t)
	Disable[Member](f.rt.Owners)
	RegisterInvalidationOwner(f.rt.Owners, memberOwner())
	f.members(t)

	_, ok := Owner[Member](f.rt.Owners)
	assert.False(t, ok)
	assert.Equal(t, 0, f.srv.Subscribers())
}

func TestOwner_DisableAutoSubscriptionOption(t *testing.T) {
	f := newFixture(t)
	RegisterInvalidationOwner(f.rt.Owners, memberOwner())
	f.members(t, func(o *Options) { o.DisableAutoSubscription = true })

	assert.False(t, f.rt.Owners.Running(reflect.TypeFor[Member]()))

	f.members(t)
	assert.True(t, f.rt.Owners.Running(reflect.TypeFor[Member]()))
}

func TestOwner_FactoryFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")
	RegisterInvalidationOwner(f.rt.Owners, func(*Runtime) (*Repository[Member, *Member], error) {
		return nil, boom
	})

	r := f.members(t)
	require.NotNil(t, r, "repositories work without an owner")

	errs := f.errs.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.False(t, f.rt.Owners.Running(reflect.TypeFor[Member]()))

	f.members(t)
	assert.Len(t, f.errs.all(), 1, "a failed owner is not retried")
}

func TestOwner_SubscribeFailure(t *testing.T) {
	f := newFixture(t)
	RegisterInvalidationOwner(f.rt.Owners, memberOwner())

	f.srv.FailNext(memory.OpSubscribe, 1, nil)
	f.members(t)

	assert.False(t, f.rt.Owners.Running(reflect.TypeFor[Member]()))
	require.Len(t, f.errs.all(), 1)
	assert.ErrorIs(t, f.errs.all()[0], memory.ErrInjected)
}

func TestOwner_TypesAreIndependent(t *testing.T) {
	f := newFixture(t)
	RegisterInvalidationOwner(f.rt.Owners, memberOwner())
	RegisterInvalidationOwner(f.rt.Owners, func(rt *Runtime) (*Repository[testsupport.Order, *testsupport.Order], error) {
		return New[testsupport.Order](rt, memberOptions())
	})

	_, err := New[testsupport.Order](f.rt, memberOptions())
	require.NoError(t, err)

	assert.True(t, f.rt.Owners.Running(reflect.TypeFor[testsupport.Order]()))
	assert.False(t, f.rt.Owners.Running(reflect.TypeFor[Member]()))

	order, ok := Owner[testsupport.Order](f.rt.Owners)
	require.True(t, ok)
	assert.Equal(t, map[SubscriptionMode][]string{Keyspace: {"order:*"}}, order.Subscriptions())
}
