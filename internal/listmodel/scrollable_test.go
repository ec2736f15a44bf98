package listmodel

import "testing"

func TestFilterableListRestoresOrderOnClear(t *testing.T) {
	l := NewFilterableList([]string{"a", "bb", "ccc", "bbbb"})
	l.SetFilter(func(s string) bool { return len(s) >= 3 })

	if l.Len() > l.FullLen() {
		t.Fatalf("Len() %d must be <= FullLen() %d", l.Len(), l.FullLen())
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 visible items, got %d", l.Len())
	}

	l.ClearFilter()
	if l.Len() != l.FullLen() {
		t.Fatalf("expected full set restored, got %d/%d", l.Len(), l.FullLen())
	}
	for i := 0; i < l.Len(); i++ {
		if l.At(i) != l.FullAt(i) {
			t.Fatalf("order not preserved at %d: %v != %v", i, l.At(i), l.FullAt(i))
		}
	}
}

func TestScrollableListHighlightStaysValid(t *testing.T) {
	s := NewScrollableList[string]()
	items := []Item[string]{{Value: "a"}, {Value: "b"}, {Value: "c"}}
	s.SetItems(items, func(v string) string { return v })
	s.SetHighlighted(2)

	if s.Highlighted() != 2 {
		t.Fatalf("expected highlighted 2, got %d", s.Highlighted())
	}
	if !s.List().At(2).IsActive {
		t.Fatal("expected highlighted row IsActive == true")
	}

	// Reconciliation drops the highlighted row: cursor must clamp back into range.
	s.SetItems([]Item[string]{{Value: "a"}, {Value: "b"}}, func(v string) string { return v })
	h := s.Highlighted()
	if h < 0 || h >= s.List().Len() {
		t.Fatalf("highlighted %d out of visible range [0,%d)", h, s.List().Len())
	}
}

func TestScrollableListPreservesHighlightAcrossReconciliation(t *testing.T) {
	s := NewScrollableList[string]()
	s.SetItems([]Item[string]{{Value: "a"}, {Value: "b"}, {Value: "c"}}, func(v string) string { return v })
	s.SetHighlighted(2) // "c"

	s.SetItems([]Item[string]{{Value: "x"}, {Value: "c"}, {Value: "a"}}, func(v string) string { return v })
	if got := s.List().At(s.Highlighted()).Value; got != "c" {
		t.Fatalf("expected highlight to follow value 'c', got %q", got)
	}
}
