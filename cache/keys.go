package cache

import (
	"strconv"
	"strings"
)

// KeySeparator sits between the namespace (BaseKey) and the natural key.
const KeySeparator = ":"

// keyspacePrefix is the channel convention the backend uses for keyspace
// notifications: __keyspace@<db>__:<key>.
const keyspacePrefix = "__keyspace@"

// QualifyID prefixes id with baseKey unless it already carries it.
//
//	QualifyID("member", "abc")        // member:abc
//	QualifyID("member", "member:abc") // member:abc
func QualifyID(baseKey, id string) string {
	if baseKey == "" || strings.HasPrefix(id, baseKey+KeySeparator) {
		return id
	}
	return baseKey + KeySeparator + id
}

// QualifyPattern anchors a glob pattern under baseKey. A pattern that already
// starts with baseKey is kept as is so "member*" keeps matching every member.
func QualifyPattern(baseKey, pattern string) string {
	if baseKey == "" || strings.HasPrefix(pattern, baseKey) {
		return pattern
	}
	return baseKey + KeySeparator + pattern
}

// Namespace returns the BaseKey segment of a qualified id.
func Namespace(id string) string {
	if i := strings.Index(id, KeySeparator); i >= 0 {
		return id[:i]
	}
	return id
}

// KeyspaceChannel returns the channel carrying keyspace notifications for
// keys matching pattern in database db.
func KeyspaceChannel(db int, pattern string) string {
	return keyspacePrefix + strconv.Itoa(db) + "__" + KeySeparator + pattern
}

// KeyFromKeyspaceChannel extracts the key from a keyspace notification
// channel of database db.
func KeyFromKeyspaceChannel(db int, channel string) (string, bool) {
	return strings.CutPrefix(channel, keyspacePrefix+strconv.Itoa(db)+"__"+KeySeparator)
}

// IsPattern reports whether s contains glob metacharacters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
