package connection

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-repository-redis/backend"
)

// Mode selects how a repository obtains its backend connection.
type Mode int

const (
	// Shared uses one connection per connection string for the whole process.
	Shared Mode = iota
	// LazyPerInstance gives every repository its own connection, dialed on
	// first backend access.
	LazyPerInstance
	// Pooled spreads requests over a fixed set of connections.
	Pooled
)

var modeNames = map[Mode]string{
	Shared:          "shared",
	LazyPerInstance: "lazy",
	Pooled:          "pooled",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "shared":
		*m = Shared
	case "lazy", "lazy_per_instance":
		*m = LazyPerInstance
	case "pooled", "pool":
		*m = Pooled
	default:
		return fmt.Errorf("connection: unknown mode %q", text)
	}
	return nil
}

// Strategy picks a connection once a pool is full.
type Strategy int

const (
	// LeastLoaded picks the live connection with the fewest outstanding
	// requests; the lowest slot wins ties.
	LeastLoaded Strategy = iota
	// Random picks uniformly among live connections.
	Random
	// Custom picks the live connection with the lowest Scorer value.
	Custom
)

var strategyNames = map[Strategy]string{
	LeastLoaded: "least_loaded",
	Random:      "random",
	Custom:      "custom",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "least_loaded", "leastloaded":
		*s = LeastLoaded
	case "random":
		*s = Random
	case "custom":
		*s = Custom
	default:
		return fmt.Errorf("connection: unknown voting strategy %q", text)
	}
	return nil
}

// Scorer ranks a connection for the Custom strategy. Lower is better.
type Scorer func(conn backend.Conn) float64

// Spec describes the connection a repository needs.
type Spec struct {
	DSN      string
	Mode     Mode
	PoolSize int
	Strategy Strategy
	Scorer   Scorer
}
