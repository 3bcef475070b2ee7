package redisconn

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// ParseDSN turns a connection string into client options. Three forms are
// accepted:
//
//	redis://:secret@cache:6379/2
//	cache:6379
//	defaultDatabase=2,cache:6379,password=secret,ssl=true,connectTimeout=10000
//
// The last is the comma separated form used by most Redis client libraries:
// bare entries are endpoints, key=value entries are settings. Only the first
// endpoint is used.
func ParseDSN(dsn string) (*redis.Options, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("redisconn: empty connection string")
	}
	if strings.HasPrefix(dsn, "redis://") || strings.HasPrefix(dsn, "rediss://") {
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("redisconn: %w", err)
		}
		return opts, nil
	}

	opts := &redis.Options{}
	for _, part := range strings.Split(dsn, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, ok := strings.Cut(part, "=")
		if !ok {
			if opts.Addr == "" {
				opts.Addr = part
			}
			continue
		}

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "defaultdatabase":
			db, err := strconv.Atoi(value)
			if err != nil || db < 0 {
				return nil, fmt.Errorf("redisconn: invalid defaultDatabase %q", value)
			}
			opts.DB = db
		case "password":
			opts.Password = value
		case "user", "username":
			opts.Username = value
		case "ssl":
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("redisconn: invalid ssl %q", value)
			}
			if enabled {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		case "connecttimeout":
			ms, err := strconv.Atoi(value)
			if err != nil || ms < 0 {
				return nil, fmt.Errorf("redisconn: invalid connectTimeout %q", value)
			}
			opts.DialTimeout = time.Duration(ms) * time.Millisecond
		case "synctimeout":
			ms, err := strconv.Atoi(value)
			if err != nil || ms < 0 {
				return nil, fmt.Errorf("redisconn: invalid syncTimeout %q", value)
			}
			opts.ReadTimeout = time.Duration(ms) * time.Millisecond
			opts.WriteTimeout = opts.ReadTimeout
		default:
			// abortConnect, allowAdmin and friends have no equivalent
		}
	}

	if opts.Addr == "" {
		return nil, fmt.Errorf("redisconn: no endpoint in connection string")
	}
	if opts.TLSConfig != nil {
		host, _, _ := strings.Cut(opts.Addr, ":")
		opts.TLSConfig.ServerName = host
	}
	return opts, nil
}
