// Package listmodel implements the generic scrollable, filterable list
// container the resource table, context/namespace pickers and the command
// palette are all built on (spec's ScrollableList<T> / FilterableList<T>).
package listmodel

// FilterableList is an ordered sequence with a disjoint visible subset.
// Full* operations act on the whole collection; Len/At/Iter act on the
// currently visible subset only.
type FilterableList[T any] struct {
	items   []T
	visible []int // indices into items, in display order
	filter  func(T) bool
}

// NewFilterableList builds a list with every item visible.
func NewFilterableList[T any](items []T) *FilterableList[T] {
	l := &FilterableList[T]{items: items}
	l.clearFilter()
	return l
}

// FullLen returns the count of the whole collection, filtered or not.
func (l *FilterableList[T]) FullLen() int { return len(l.items) }

// Len returns the count of the currently visible subset.
func (l *FilterableList[T]) Len() int { return len(l.visible) }

// At returns the i-th visible item; i must be in [0, Len()).
func (l *FilterableList[T]) At(i int) T { return l.items[l.visible[i]] }

// FullAt returns the i-th item of the whole collection, ignoring filtering.
func (l *FilterableList[T]) FullAt(i int) T { return l.items[i] }

// FullItems returns the whole backing collection.
func (l *FilterableList[T]) FullItems() []T { return l.items }

// Iter calls fn for every currently visible item, in display order.
func (l *FilterableList[T]) Iter(fn func(i int, item T) bool) {
	for i, idx := range l.visible {
		if !fn(i, l.items[idx]) {
			return
		}
	}
}

// SetItems replaces the backing collection and re-applies the current
// filter predicate (if any) to compute the new visible subset.
func (l *FilterableList[T]) SetItems(items []T) {
	l.items = items
	l.applyFilter()
}

// SetFilter installs a predicate and recomputes the visible subset.
// A nil predicate clears filtering, restoring the full set in original
// order.
func (l *FilterableList[T]) SetFilter(predicate func(T) bool) {
	l.filter = predicate
	l.applyFilter()
}

// ClearFilter restores the full set in original order.
func (l *FilterableList[T]) ClearFilter() { l.SetFilter(nil) }

func (l *FilterableList[T]) clearFilter() {
	l.visible = make([]int, len(l.items))
	for i := range l.items {
		l.visible[i] = i
	}
}

func (l *FilterableList[T]) applyFilter() {
	if l.filter == nil {
		l.clearFilter()
		return
	}
	l.visible = l.visible[:0]
	for i, item := range l.items {
		if l.filter(item) {
			l.visible = append(l.visible, i)
		}
	}
}

// VisibleToFull translates a visible-subset index into a full-collection
// index; ok is false if i is out of range.
func (l *FilterableList[T]) VisibleToFull(i int) (int, bool) {
	if i < 0 || i >= len(l.visible) {
		return 0, false
	}
	return l.visible[i], true
}
