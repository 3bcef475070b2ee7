package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-repository-redis/connection"
	"github.com/goliatone/go-repository-redis/pkg/testsupport"
	"github.com/goliatone/go-repository-redis/repository"
)

const sample = `
cache:
  ttl: 10m
  sliding: false
defaults:
  connection_string: redis://localhost:6379/0
  record_expiration: 24h
types:
  member:
    connection_mode: pooled
    pool_size: 4
    voting_strategy: random
    subscription_mode: pubsub
  order:
    enable_caching: false
    connection_string: memory://local/3
`

func TestLoad(t *testing.T) {
	path := testsupport.TempFile(t, "docrepo.yaml", []byte(sample))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("cache ttl = %v, want 10m", cfg.Cache.TTL)
	}
	if cfg.Cache.Sliding {
		t.Error("expected sliding to be overridden")
	}
	if cfg.Cache.Capacity == 0 {
		t.Error("expected unset cache fields to keep their defaults")
	}

	member := cfg.Options("member")
	if member.ConnectionString != "redis://localhost:6379/0" {
		t.Errorf("member dsn = %q", member.ConnectionString)
	}
	if member.ConnectionMode != connection.Pooled || member.PoolSize != 4 {
		t.Errorf("member pool = %s/%d", member.ConnectionMode, member.PoolSize)
	}
	if member.PoolVotingStrategy != connection.Random {
		t.Errorf("member strategy = %s", member.PoolVotingStrategy)
	}
	if member.SubscriptionMode != repository.PubSub {
		t.Errorf("member subscription mode = %s", member.SubscriptionMode)
	}
	if member.DefaultRecordExpiration != 24*time.Hour {
		t.Errorf("member record expiration = %v", member.DefaultRecordExpiration)
	}
	if !member.EnableCaching || !member.SuppressDuplicateNotifications {
		t.Error("expected built-in defaults to survive the merge")
	}

	order := cfg.Options("order")
	if order.EnableCaching {
		t.Error("expected caching disabled for order")
	}
	if order.ConnectionString != "memory://local/3" {
		t.Errorf("order dsn = %q", order.ConnectionString)
	}
	if order.ConnectionMode != connection.Shared {
		t.Errorf("order mode = %s", order.ConnectionMode)
	}

	if got := cfg.Options("invoice"); got.ConnectionString != "redis://localhost:6379/0" {
		t.Errorf("unlisted types should use defaults, got %q", got.ConnectionString)
	}
	if names := cfg.TypeNames(); strings.Join(names, ",") != "member,order" {
		t.Errorf("TypeNames() = %v", names)
	}
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("DOCREPO_TEST_DSN", "redis://cache:6380/2")

	cfg, err := Parse([]byte("types:\n  member:\n    connection_string: ${DOCREPO_TEST_DSN}\n"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if got := cfg.Options("member").ConnectionString; got != "redis://cache:6380/2" {
		t.Errorf("dsn = %q", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{
			name:  "unknown mode",
			input: "types:\n  member:\n    connection_string: x\n    connection_mode: sticky\n",
			field: "types.member",
		},
		{
			name:  "missing connection string",
			input: "types:\n  member:\n    enable_caching: true\n",
			field: "types.member",
		},
		{
			name:  "invalid cache",
			input: "cache:\n  eviction_percentage: 200\n",
			field: "cache",
		},
		{
			name:  "bad duration",
			input: "defaults:\n  record_expiration: soon\n",
			field: "defaults",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("expected an error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %T: %v", err, err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("types: [")); err == nil {
		t.Fatal("expected a syntax error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(testsupport.FixturePath("does-not-exist.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestConfigError(t *testing.T) {
	cause := errors.New("must be no less than 1")
	err := &ConfigError{Field: "types.member", Err: cause}

	if err.Error() != "config error in field types.member: must be no less than 1" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected ConfigError to unwrap its cause")
	}
}
