// Package event defines the closed catalog of events exchanged between game modules.
// Each event name is bound to exactly one payload type through a typed Key.
package event

import "sort"

// CatalogVersion is bumped whenever an event is added or a payload shape changes.
const CatalogVersion = 1

// Name identifies a category of occurrence, e.g. "order:filled".
type Name string

func (n Name) String() string {
	return string(n)
}

// Event is implemented by every payload in the catalog.
type Event interface {
	// EventName returns the catalog name the payload is bound to
	EventName() Name
}

// Key binds an event name to its payload type P.
// Keys are only declared in this package, which keeps the catalog closed.
type Key[P Event] struct {
	name Name
}

// Name returns the event name carried by the key.
func (k Key[P]) Name() Name {
	return k.name
}

func newKey[P Event](name Name) Key[P] {
	catalog[name] = struct{}{}
	return Key[P]{name: name}
}

var catalog = make(map[Name]struct{})

// Catalog returns every declared event name, sorted.
func Catalog() []Name {
	names := make([]Name, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Lookup reports whether s names a catalog event.
func Lookup(s string) (Name, bool) {
	_, ok := catalog[Name(s)]
	return Name(s), ok
}
