package listmodel

// Item wraps a value T with the cursor/selection/reconciliation flags the
// resource table and pickers need: IsActive marks the cursor row, IsSelected
// marks rows batched for bulk operations, IsFixed exempts a row from
// filtering and sorting (e.g. the "all namespaces" pseudo-row), IsDirty
// marks a row touched by the most recent watcher reconciliation.
type Item[T any] struct {
	Value      T
	IsActive   bool
	IsSelected bool
	IsFixed    bool
	IsDirty    bool
}

// ScrollableList owns a FilterableList of Items, a viewport window and a
// highlighted (cursor) index kept consistent with IsActive.
type ScrollableList[T any] struct {
	list        *FilterableList[Item[T]]
	highlighted *int
	viewTop     int
	viewHeight  int
}

func NewScrollableList[T any]() *ScrollableList[T] {
	return &ScrollableList[T]{list: NewFilterableList[Item[T]](nil)}
}

func (s *ScrollableList[T]) List() *FilterableList[Item[T]] { return s.list }

// SetItems replaces the backing items, preserving the highlighted uid when
// possible via keyFn; if the previously highlighted item is gone, the
// highlighted index is clamped into range (or cleared if the list is empty).
func (s *ScrollableList[T]) SetItems(items []Item[T], keyFn func(T) string) {
	var prevKey string
	hadHighlight := false
	if s.highlighted != nil {
		if full, ok := s.list.VisibleToFull(*s.highlighted); ok {
			prevKey = keyFn(s.list.FullAt(full).Value)
			hadHighlight = true
		}
	}

	s.list.SetItems(items)

	if !hadHighlight {
		s.clampHighlight()
		return
	}
	for i := 0; i < s.list.Len(); i++ {
		if keyFn(s.list.At(i).Value) == prevKey {
			s.SetHighlighted(i)
			return
		}
	}
	s.clampHighlight()
}

func (s *ScrollableList[T]) clampHighlight() {
	if s.list.Len() == 0 {
		s.highlighted = nil
		return
	}
	h := 0
	if s.highlighted != nil {
		h = *s.highlighted
	}
	if h >= s.list.Len() {
		h = s.list.Len() - 1
	}
	if h < 0 {
		h = 0
	}
	s.SetHighlighted(h)
}

// Highlighted returns the currently highlighted visible index, or -1 if none.
func (s *ScrollableList[T]) Highlighted() int {
	if s.highlighted == nil {
		return -1
	}
	return *s.highlighted
}

// SetHighlighted moves the cursor to visible index i, updating IsActive on
// the old and new rows. Out-of-range i is a no-op.
func (s *ScrollableList[T]) SetHighlighted(i int) {
	if i < 0 || i >= s.list.Len() {
		return
	}
	if s.highlighted != nil {
		if full, ok := s.list.VisibleToFull(*s.highlighted); ok {
			items := s.list.FullItems()
			items[full].IsActive = false
		}
	}
	full, _ := s.list.VisibleToFull(i)
	items := s.list.FullItems()
	items[full].IsActive = true
	s.highlighted = &i
	s.ensureVisible()
}

func (s *ScrollableList[T]) SetViewHeight(h int) {
	s.viewHeight = h
	s.ensureVisible()
}

func (s *ScrollableList[T]) ensureVisible() {
	if s.highlighted == nil || s.viewHeight <= 0 {
		return
	}
	h := *s.highlighted
	if h < s.viewTop {
		s.viewTop = h
	} else if h >= s.viewTop+s.viewHeight {
		s.viewTop = h - s.viewHeight + 1
	}
}

// Visible returns the window of visible-subset indices currently shown.
func (s *ScrollableList[T]) Visible() (start, count int) {
	count = s.viewHeight
	if count <= 0 || count > s.list.Len() {
		count = s.list.Len()
	}
	start = s.viewTop
	if start+count > s.list.Len() {
		start = s.list.Len() - count
	}
	if start < 0 {
		start = 0
	}
	return start, count
}

// MoveCursor shifts the highlighted index by delta, clamped to the visible
// range.
func (s *ScrollableList[T]) MoveCursor(delta int) {
	if s.list.Len() == 0 {
		return
	}
	h := s.Highlighted()
	if h < 0 {
		h = 0
	}
	h += delta
	if h < 0 {
		h = 0
	}
	if h >= s.list.Len() {
		h = s.list.Len() - 1
	}
	s.SetHighlighted(h)
}

// SelectAll marks every row in the full collection as selected.
func (s *ScrollableList[T]) SelectAll() {
	items := s.list.FullItems()
	for i := range items {
		items[i].IsSelected = true
	}
}

// DeselectAll clears selection on every row.
func (s *ScrollableList[T]) DeselectAll() {
	items := s.list.FullItems()
	for i := range items {
		items[i].IsSelected = false
	}
}

// InvertSelection flips IsSelected on every row of the full collection.
func (s *ScrollableList[T]) InvertSelection() {
	items := s.list.FullItems()
	for i := range items {
		items[i].IsSelected = !items[i].IsSelected
	}
}

// SelectedValues returns the Value of every selected row, in full-collection
// order.
func (s *ScrollableList[T]) SelectedValues() []T {
	var out []T
	for _, item := range s.list.FullItems() {
		if item.IsSelected {
			out = append(out, item.Value)
		}
	}
	return out
}
