// Package storage defines the key/value persistence contract used by the game.
// The event bus never touches storage; game modules call it directly.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned for empty keys or keys containing wildcard characters.
var ErrInvalidKey = errors.New("invalid storage key")

// DefaultNamespace prefixes every key written by the game.
const DefaultNamespace = "tradequest"

// Store persists opaque structured values by key.
// Values are serialized by the implementation; callers pass and receive Go values.
type Store interface {
	// Save writes value under key, replacing any previous value.
	Save(ctx context.Context, key string, value any) error

	// Load decodes the value stored under key into dst.
	// Returns false if the key is absent.
	Load(ctx context.Context, key string, dst any) (bool, error)

	// Delete removes key. Returns true if the key was present.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// ListKeys returns the keys starting with prefix, sorted.
	// An empty prefix lists every key.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Clear removes every key in the store's namespace.
	Clear(ctx context.Context) error
}

// ValidateKey checks that key can be stored by every implementation.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.ContainsAny(key, "*?[]") {
		return fmt.Errorf("%w: %q contains a wildcard character", ErrInvalidKey, key)
	}
	return nil
}

// ValidatePrefix checks a ListKeys prefix. The empty prefix is valid.
func ValidatePrefix(prefix string) error {
	if strings.ContainsAny(prefix, "*?[]") {
		return fmt.Errorf("%w: prefix %q contains a wildcard character", ErrInvalidKey, prefix)
	}
	return nil
}

// ValidateNamespace checks a store namespace. Backends that match keys by pattern
// would otherwise read the namespace as a wildcard. The empty namespace is valid.
func ValidateNamespace(namespace string) error {
	if strings.ContainsAny(namespace, "*?[]\\") {
		return fmt.Errorf("%w: namespace %q contains a wildcard or escape character", ErrInvalidKey, namespace)
	}
	return nil
}
