// Package cache provides the process wide document cache and the key
// conventions shared by repositories, backends and subscribers.
//
// # Overview
//
// The cache maps a fully qualified document id (BaseKey + ":" + natural key)
// to the last known serialized document, or to an explicit absence marker
// recorded after the backend reported the id as nonexistent.
//
//	store, err := cache.New(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	store.RegisterNamespace("member", 10*time.Minute)
//
//	changed := store.Set(cache.Entry{ID: "member:abc", Modified: &ts, Payload: data})
//	entry, state := store.Get("member:abc")
//
// # Monotonic writes
//
// Two sources feed the cache: local reads and saves, and notifications pushed
// by the backend. Either can arrive late. Set only replaces a cached document
// when the incoming ModifyDate is strictly newer, so an out of order
// notification or a stale read never rolls a document back. Set reports
// whether the write took effect; subscribers use that to drop duplicate
// notifications.
//
// # Expiration
//
// Eviction is time based. Every namespace has one TTL, registered by the
// first repository of that document type; ids in unregistered namespaces use
// Config.TTL. With Config.Sliding a read re-arms the TTL of a document entry.
// Absence markers always expire on an absolute schedule. Expired entries are
// never returned, whether or not the background sweep already removed them.
//
// # Payloads
//
// Entries hold bytes, not decoded objects. Each reader decodes its own copy,
// so no mutable entity is shared between goroutines or repository instances.
package cache
