package cacheinfra

import (
	"bytes"
	"time"
)

// State is the outcome of a cache lookup.
type State int

const (
	// Miss means nothing is known about the id.
	Miss State = iota
	// Hit means a document payload is cached.
	Hit
	// Absent means the backend recently reported the id as nonexistent.
	Absent
)

func (s State) String() string {
	switch s {
	case Hit:
		return "hit"
	case Absent:
		return "absent"
	default:
		return "miss"
	}
}

// Entry is what the cache holds for one fully qualified document id.
type Entry struct {
	ID string
	// Modified is the document ModifyDate; nil for never saved documents.
	Modified *time.Time
	// Payload is the canonical serialized document. Callers must not
	// mutate it.
	Payload []byte
	// Absent marks a negative lookup result. Payload is empty.
	Absent bool
}

func (e Entry) clone() Entry {
	out := e
	out.Payload = bytes.Clone(e.Payload)
	if e.Modified != nil {
		m := *e.Modified
		out.Modified = &m
	}
	return out
}

// newerThan reports whether incoming strictly advances current.
// A nil modify date is older than any set one.
func newerThan(incoming, current *time.Time) bool {
	if incoming == nil {
		return false
	}
	if current == nil {
		return true
	}
	return incoming.After(*current)
}
