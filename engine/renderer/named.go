package renderer

import (
	"maps"
	"slices"
)

// NamedRenderable is a helper draw owned by the context, e.g. a full-screen
// copy or compose pass shared between render passes.
type NamedRenderable interface {
	Render() error
	Update()
	Dispose()
}

// Named is a string keyed registry of shared helper objects.
type Named[T any] struct {
	items map[string]T
}

func newNamed[T any]() *Named[T] {
	return &Named[T]{items: make(map[string]T)}
}

// Get returns the item stored under name.
func (n *Named[T]) Get(name string) (T, bool) {
	v, ok := n.items[name]
	return v, ok
}

// Set stores v under name, replacing any previous item.
func (n *Named[T]) Set(name string, v T) {
	n.items[name] = v
}

// Delete removes the item stored under name.
func (n *Named[T]) Delete(name string) {
	delete(n.items, name)
}

// Len returns the number of stored items.
func (n *Named[T]) Len() int {
	return len(n.items)
}

// Range calls fn for every item in name order until fn returns false.
func (n *Named[T]) Range(fn func(name string, v T) bool) {
	for _, name := range slices.Sorted(maps.Keys(n.items)) {
		if !fn(name, n.items[name]) {
			return
		}
	}
}

func (n *Named[T]) clear() {
	clear(n.items)
}
