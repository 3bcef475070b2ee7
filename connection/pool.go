package connection

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/goliatone/go-repository-redis/backend"
	"github.com/goliatone/go-repository-redis/internal/metrics"
)

// Pool is a fixed set of connections to one connection string.
//
// Slots are dialed lazily: while a slot was never dialed, the next call
// dials it and returns it, so the first N calls fill the pool. A slot whose
// connection reports itself disconnected is redialed before any voting
// happens. The strategy chooses among the live connections when every slot
// is live or when the dial for a slot failed.
type Pool struct {
	mu       sync.Mutex
	dsn      string
	dial     backend.Dialer
	slots    []backend.Conn
	strategy Strategy
	scorer   Scorer
	metrics  *metrics.Metrics
	closed   bool
}

// NewPool creates a pool of size slots. Nothing is dialed until Get.
func NewPool(dsn string, size int, strategy Strategy, scorer Scorer, dial backend.Dialer, m *metrics.Metrics) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("connection: pool size must be positive, got %d", size)
	}
	if strategy == Custom && scorer == nil {
		return nil, fmt.Errorf("connection: custom voting strategy requires a scorer")
	}
	return &Pool{
		dsn:      dsn,
		dial:     dial,
		slots:    make([]backend.Conn, size),
		strategy: strategy,
		scorer:   scorer,
		metrics:  m,
	}, nil
}

// Size returns the number of slots.
func (p *Pool) Size() int { return len(p.slots) }

// Get returns a connection following the fill-then-vote rule. An empty
// slot is dialed first, then the first dead slot is redialed. When that
// dial fails the live connections still vote.
func (p *Pool) Get(ctx context.Context) (backend.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, backend.ErrClosed
	}

	live := make([]backend.Conn, 0, len(p.slots))
	empty, dead := -1, -1
	for i, conn := range p.slots {
		switch {
		case conn == nil:
			if empty < 0 {
				empty = i
			}
		case conn.Connected():
			live = append(live, conn)
		case dead < 0:
			dead = i
		}
	}

	var err error
	switch {
	case empty >= 0:
		var conn backend.Conn
		if conn, err = p.dialSlot(ctx, empty, "fill"); err == nil {
			return conn, nil
		}
	case dead >= 0:
		_ = p.slots[dead].Close()
		var conn backend.Conn
		if conn, err = p.dialSlot(ctx, dead, "redial"); err == nil {
			return conn, nil
		}
	}
	if len(live) == 0 {
		return nil, err
	}

	p.metrics.PoolSelection(p.strategy.String(), "vote")
	return p.vote(live), nil
}

func (p *Pool) dialSlot(ctx context.Context, i int, path string) (backend.Conn, error) {
	conn, err := p.dial(ctx, p.dsn)
	if err != nil {
		return nil, fmt.Errorf("connection: dial pool slot %d: %w", i, err)
	}
	p.slots[i] = conn
	p.metrics.PoolSelection(p.strategy.String(), path)
	return conn, nil
}

func (p *Pool) vote(live []backend.Conn) backend.Conn {
	switch p.strategy {
	case Random:
		return live[rand.IntN(len(live))]
	case Custom:
		best, bestScore := live[0], p.scorer(live[0])
		for _, conn := range live[1:] {
			if score := p.scorer(conn); score < bestScore {
				best, bestScore = conn, score
			}
		}
		return best
	default:
		best, bestLoad := live[0], live[0].Outstanding()
		for _, conn := range live[1:] {
			if load := conn.Outstanding(); load < bestLoad {
				best, bestLoad = conn, load
			}
		}
		return best
	}
}

// Conns returns the dialed connections in slot order.
func (p *Pool) Conns() []backend.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := make([]backend.Conn, 0, len(p.slots))
	for _, conn := range p.slots {
		if conn != nil {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Close closes every dialed connection. Later Get calls fail with
// backend.ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var first error
	for i, conn := range p.slots {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
		p.slots[i] = nil
	}
	return first
}
