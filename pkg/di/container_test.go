package di

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/goliatone/go-repository-redis/backend"
	"github.com/goliatone/go-repository-redis/backend/memory"
	"github.com/goliatone/go-repository-redis/cache"
	"github.com/goliatone/go-repository-redis/pkg/testsupport"
	"github.com/goliatone/go-repository-redis/repository"
)

func memberOptions(dsn string) repository.Options {
	opts := repository.DefaultOptions()
	opts.ConnectionString = dsn
	return opts
}

func TestNewContainer(t *testing.T) {
	config := cache.Config{
		Capacity:           1000,
		NumShards:          16,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		Sliding:            true,
	}

	container, err := NewContainer(config, memory.NewServer().Dialer())
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close(context.Background())

	if container.Cache() == nil {
		t.Error("Container should have a non-nil cache")
	}
	if container.Registry() == nil {
		t.Error("Container should have a non-nil registry")
	}
	if rt := container.Runtime(); rt == nil || rt.Owners == nil {
		t.Error("Container should have a runtime with an owner registry")
	}

	stored := container.Config()
	if stored.Capacity != config.Capacity {
		t.Errorf("Expected capacity %d, got %d", config.Capacity, stored.Capacity)
	}
	if stored.TTL != config.TTL {
		t.Errorf("Expected TTL %v, got %v", config.TTL, stored.TTL)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults(nil)
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close(context.Background())

	if got, want := container.Config().TTL, cache.DefaultConfig().TTL; got != want {
		t.Errorf("Expected default TTL %v, got %v", want, got)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	invalid := cache.Config{
		Capacity:           0,
		NumShards:          256,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	}

	if _, err := NewContainer(invalid, nil); err == nil {
		t.Fatal("Expected an error for zero capacity")
	}
}

func TestNewRepository(t *testing.T) {
	container, err := NewContainerWithDefaults(nil)
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close(context.Background())

	members, err := NewRepository[testsupport.Member](container, memberOptions("memory://app/0"))
	if err != nil {
		t.Fatalf("NewRepository() failed: %v", err)
	}
	if members.BaseKey() != testsupport.MemberBaseKey {
		t.Errorf("Expected base key %q, got %q", testsupport.MemberBaseKey, members.BaseKey())
	}

	if _, err := NewRepository[testsupport.Member](container, repository.Options{}); err == nil {
		t.Error("Expected an error without a connection string")
	}
}

func TestNewContainer_RegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	container, err := NewContainerWithDefaults(nil, WithRegisterer(reg))
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close(context.Background())

	members, err := NewRepository[testsupport.Member](container, memberOptions("memory://metrics/0"))
	if err != nil {
		t.Fatalf("NewRepository() failed: %v", err)
	}
	if _, err := members.GetByID(context.Background(), "nobody"); err == nil {
		t.Fatal("Expected not found")
	}

	expected := `
# HELP docrepo_cache_lookups_total Local cache lookups by outcome (hit, absent, miss)
# TYPE docrepo_cache_lookups_total counter
docrepo_cache_lookups_total{namespace="member",outcome="miss"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "docrepo_cache_lookups_total"); err != nil {
		t.Error(err)
	}

	second, err := NewContainerWithDefaults(nil, WithRegisterer(reg))
	if err != nil {
		t.Fatalf("a second container on the same registry failed: %v", err)
	}
	second.Close(context.Background())
}

func TestDialer_RoutesByScheme(t *testing.T) {
	ctx := context.Background()
	dial := Dialer(nil, nil)

	a, err := dial(ctx, "memory://shared/1")
	if err != nil {
		t.Fatalf("memory dial failed: %v", err)
	}
	b, err := dial(ctx, "memory://shared/1")
	if err != nil {
		t.Fatalf("memory dial failed: %v", err)
	}
	if a.DB() != 1 {
		t.Errorf("Expected db 1, got %d", a.DB())
	}
	if err := a.Set(ctx, "k", []byte("v"), 0, backend.Acknowledged); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, found, _ := b.Get(ctx, "k"); !found {
		t.Error("connections to the same memory server should share keys")
	}

	other, err := dial(ctx, "memory://other/1")
	if err != nil {
		t.Fatalf("memory dial failed: %v", err)
	}
	if _, found, _ := other.Get(ctx, "k"); found {
		t.Error("differently named memory servers should be isolated")
	}

	sqlite, err := dial(ctx, "sqlite://file:di_dialer?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("sqlite dial failed: %v", err)
	}
	defer sqlite.Close()
	if !sqlite.Connected() {
		t.Error("Expected the sqlite connection to be live")
	}
}
