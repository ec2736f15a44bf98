package content

import (
	"testing"
	"time"
)

func plainFallback() StyleFallback { return StyleFallback{} }

func newTestDocument(lines ...string) *Document {
	styled := make([]StyledLine, len(lines))
	for i, l := range lines {
		styled[i] = StyledLine{{Text: l}}
	}
	return NewDocument(styled, true, plainFallback(), nil)
}

func TestMirrorsStayLenSynchronized(t *testing.T) {
	d := newTestDocument("hello", "world")
	d.InsertChar(Position{X: 5, Y: 0}, '\n')

	if len(d.Styled) != len(d.Plain) || len(d.Plain) != len(d.Lowercase) {
		t.Fatalf("mirrors diverged in length: %d/%d/%d", len(d.Styled), len(d.Plain), len(d.Lowercase))
	}
	for i := range d.Plain {
		if d.Styled[i].Len() != len([]rune(d.Plain[i])) {
			t.Fatalf("line %d: styled len %d != plain len %d", i, d.Styled[i].Len(), len([]rune(d.Plain[i])))
		}
	}
}

func TestInsertNewlineThenBackspaceIsIdentity(t *testing.T) {
	d := newTestDocument("ab")
	pos := d.InsertChar(Position{X: 1, Y: 0}, '\n')
	if _, ok := d.RemoveChar(pos, true); !ok {
		t.Fatal("expected RemoveChar to succeed")
	}
	if d.Plain[0] != "ab" || len(d.Plain) != 1 {
		t.Fatalf("expected identity on plain, got %v", d.Plain)
	}
}

func TestRemoveCharBoundaries(t *testing.T) {
	d := newTestDocument("ab")
	if pos, ok := d.RemoveChar(Position{X: 0, Y: 0}, true); !ok || pos != (Position{0, 0}) {
		t.Fatalf("expected (0,0)/true at document start, got %v/%v", pos, ok)
	}
	if _, ok := d.RemoveChar(Position{X: 2, Y: 0}, false); ok {
		t.Fatal("expected forward-delete at end-of-doc to fail")
	}
}

func TestPageOutOfRangeIsEmpty(t *testing.T) {
	d := newTestDocument("a", "b")
	if got := d.Page(5, 10); got != nil {
		t.Fatalf("expected nil for start >= len, got %v", got)
	}
}

func TestUndoCoalescingScenario(t *testing.T) {
	d := newTestDocument("")
	base := time.Now()
	timeNow = func() time.Time { return base }
	defer func() { timeNow = time.Now }()

	pos := d.InsertChar(Position{X: 0, Y: 0}, 'a')
	timeNow = func() time.Time { return base.Add(80 * time.Millisecond) }
	pos = d.InsertChar(pos, 'b')
	timeNow = func() time.Time { return base.Add(160 * time.Millisecond) }
	pos = d.InsertChar(pos, 'c')
	timeNow = func() time.Time { return base.Add(240 * time.Millisecond) }
	if _, ok := d.RemoveChar(pos, true); !ok {
		t.Fatal("expected backspace to succeed")
	}

	if d.Plain[0] != "ab" {
		t.Fatalf("expected 'ab' before undo, got %q", d.Plain[0])
	}

	if _, ok := d.Undo(); !ok {
		t.Fatal("expected undo to succeed")
	}
	if d.Plain[0] != "" {
		t.Fatalf("expected '' after undo of coalesced group, got %q", d.Plain[0])
	}

	if _, ok := d.Redo(); !ok {
		t.Fatal("expected redo to succeed")
	}
	if d.Plain[0] != "ab" {
		t.Fatalf("expected 'ab' after redo, got %q", d.Plain[0])
	}
}

type fakeHighlighter struct {
	ch chan HighlightResponse
}

func newFakeHighlighter() *fakeHighlighter { return &fakeHighlighter{ch: make(chan HighlightResponse, 1)} }

func (f *fakeHighlighter) Submit(req HighlightRequest) <-chan HighlightResponse { return f.ch }

func (f *fakeHighlighter) reply(resp HighlightResponse) { f.ch <- resp }

func TestHighlightSchedulingRace(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "line"
	}
	d := newTestDocument(lines...)
	hl := newFakeHighlighter()
	d.highlighter = hl

	for i := 10; i <= 12; i++ {
		d.markModified(i)
	}
	d.ProcessTick() // issues the request, clears modified, sets requested

	if d.requested == nil {
		t.Fatal("expected an outstanding highlight request")
	}

	// A new edit races the outstanding reply.
	d.markModified(11)

	hl.reply(HighlightResponse{Styled: []StyledLine{{{Text: "x"}}, {{Text: "y"}}, {{Text: "z"}}}})
	d.ProcessTick()

	if d.requested != nil {
		t.Fatal("expected the outstanding request to be cleared")
	}
	for i := 10; i <= 12; i++ {
		if _, ok := d.modified[i]; !ok {
			t.Fatalf("expected line %d to remain modified after a raced reply", i)
		}
	}
	if d.Plain[10] == "x" {
		t.Fatal("expected the stale styled fragment to be discarded, not applied")
	}
}

func TestSearchReturnsMatchesInDocumentOrder(t *testing.T) {
	d := newTestDocument("foo bar", "bar foo")
	matches := d.Search("bar")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Y != 0 || matches[1].Y != 1 {
		t.Fatalf("expected document order, got %+v", matches)
	}
}
