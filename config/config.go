// Package config loads repository settings from a YAML file.
//
//	cache:
//	  ttl: 30m
//	  sliding: true
//	defaults:
//	  connection_string: redis://localhost:6379/0
//	  subscription_mode: keyspace
//	types:
//	  member:
//	    connection_mode: pooled
//	    pool_size: 4
//	  order:
//	    enable_caching: false
//
// Each entry of types is decoded over defaults, so a type only lists what
// differs. Environment variables in the file are expanded before parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-repository-redis/cache"
	"github.com/goliatone/go-repository-redis/repository"
)

// Config is the parsed file.
type Config struct {
	Cache    cache.Config
	Defaults repository.Options
	Types    map[string]repository.Options
}

// ConfigError reports an invalid section of the file.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

type file struct {
	Cache    yaml.Node            `yaml:"cache"`
	Defaults yaml.Node            `yaml:"defaults"`
	Types    map[string]yaml.Node `yaml:"types"`
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var raw file
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, err
	}

	cfg := &Config{
		Cache:    cache.DefaultConfig(),
		Defaults: repository.DefaultOptions(),
		Types:    make(map[string]repository.Options, len(raw.Types)),
	}
	if err := decode(&raw.Cache, &cfg.Cache, "cache"); err != nil {
		return nil, err
	}
	if err := decode(&raw.Defaults, &cfg.Defaults, "defaults"); err != nil {
		return nil, err
	}
	for name, node := range raw.Types {
		opts := cfg.Defaults
		if err := decode(&node, &opts, "types."+name); err != nil {
			return nil, err
		}
		cfg.Types[name] = opts
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(node *yaml.Node, out any, field string) error {
	if node.Kind == 0 {
		return nil
	}
	if err := node.Decode(out); err != nil {
		return &ConfigError{Field: field, Err: err}
	}
	return nil
}

// Validate checks the cache section and every type. Defaults are only
// checked through the types using them, since a file may leave the
// connection string to each type.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, &ConfigError{Field: "cache", Err: err})
	}
	for _, name := range c.TypeNames() {
		opts := c.Types[name]
		if err := opts.Validate(); err != nil {
			errs = append(errs, &ConfigError{Field: "types." + name, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Options returns the options of the type with baseKey, or the defaults
// when the file does not list it.
func (c *Config) Options(baseKey string) repository.Options {
	if opts, ok := c.Types[baseKey]; ok {
		return opts
	}
	return c.Defaults
}

// TypeNames returns the configured base keys in sorted order.
func (c *Config) TypeNames() []string {
	names := make([]string, 0, len(c.Types))
	for name := range c.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
