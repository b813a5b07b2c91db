package repository

import (
	"regexp"
	"strings"
)

// keyspace maps caller keys to namespaced backend keys.
type keyspace struct {
	namespace string
}

func newKeyspace(namespace string) keyspace {
	return keyspace{namespace: strings.TrimSuffix(namespace, ":")}
}

// key returns the backend key for a caller key.
func (k keyspace) key(key string) string {
	if k.namespace == "" {
		return key
	}
	return k.namespace + ":" + key
}

// strip returns the caller key for a backend key.
func (k keyspace) strip(key string) string {
	if k.namespace == "" {
		return key
	}
	return strings.TrimPrefix(key, k.namespace+":")
}

// pattern returns a Redis SCAN match pattern for keys starting with prefix.
func (k keyspace) pattern(prefix string) string {
	return k.key(prefix) + "*"
}

// regex returns an anchored regular expression for keys starting with prefix.
func (k keyspace) regex(prefix string) string {
	return "^" + regexp.QuoteMeta(k.key(prefix))
}
