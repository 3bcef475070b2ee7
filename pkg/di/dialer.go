package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-repository-redis/backend"
	"github.com/goliatone/go-repository-redis/backend/memory"
	"github.com/goliatone/go-repository-redis/backend/redisconn"
	"github.com/goliatone/go-repository-redis/backend/sqlstore"
)

// Dialer routes a connection string to a backend by scheme:
//
//	memory://<name>/<db>           in process server, one per name
//	sqlite://..., postgres://...   SQL table backend
//	anything else                  Redis (URL, host:port or comma form)
func Dialer(logger *slog.Logger, onError backend.ErrorHandler) backend.Dialer {
	servers := xsync.NewMapOf[string, *memory.Server]()
	var memOpts []memory.Option
	if onError != nil {
		memOpts = append(memOpts, memory.WithErrorHandler(onError))
	}

	redisDial := redisconn.Dialer(redisconn.WithLogger(logger), redisconn.WithErrorHandler(onError))
	sqlDial := sqlstore.Dialer(sqlstore.WithLogger(logger), sqlstore.WithErrorHandler(onError))

	return func(ctx context.Context, dsn string) (backend.Conn, error) {
		switch scheme(dsn) {
		case "memory":
			u, err := url.Parse(dsn)
			if err != nil {
				return nil, fmt.Errorf("di: invalid dsn %q: %w", dsn, err)
			}
			srv, _ := servers.LoadOrCompute(u.Host, func() *memory.Server {
				return memory.NewServer(memOpts...)
			})
			return srv.Dialer()(ctx, dsn)
		case "sqlite", "postgres", "postgresql":
			return sqlDial(ctx, dsn)
		default:
			return redisDial(ctx, dsn)
		}
	}
}

func scheme(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return u.Scheme
}
