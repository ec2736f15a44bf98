package content

import "testing"

func TestStyledLineInsertAndLen(t *testing.T) {
	l := StyledLine{{Text: "hello"}}
	l.InsertString(5, " world")
	if got := l.PlainText(); got != "hello world" {
		t.Fatalf("expected 'hello world', got %q", got)
	}
	if l.Len() != 11 {
		t.Fatalf("expected len 11, got %d", l.Len())
	}
}

func TestStyledLineDrainSingleSpan(t *testing.T) {
	l := StyledLine{{Text: "hello world"}}
	l.Drain(5, 11)
	if got := l.PlainText(); got != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}
}

func TestStyledLineDrainAcrossSpans(t *testing.T) {
	l := StyledLine{{Text: "foo"}, {Text: "bar"}, {Text: "baz"}}
	l.Drain(2, 7) // drains chars [2,7) = "o|bar|b" => "fo" + "az"
	if got := l.PlainText(); got != "foaz" {
		t.Fatalf("expected 'foaz', got %q", got)
	}
}

func TestStyledLineSecondSplitsAtIndex(t *testing.T) {
	l := StyledLine{{Text: "hello world"}}
	second := l.Second(6)
	if got := second.PlainText(); got != "world" {
		t.Fatalf("expected 'world', got %q", got)
	}
}

func TestStyledLinePushRespectsFallback(t *testing.T) {
	excluded := Style{FgIndex: 1}
	fallback := StyleFallback{Excluded: excluded, Fallback: Style{FgIndex: 2}}

	l := StyledLine{{Style: excluded, Text: "a"}}
	l.PushChar('b', fallback)
	if len(l) != 2 {
		t.Fatalf("expected a new span when last span's style is excluded, got %d spans", len(l))
	}

	l2 := StyledLine{{Style: Style{FgIndex: 2}, Text: "a"}}
	l2.PushChar('b', fallback)
	if len(l2) != 1 || l2[0].Text != "ab" {
		t.Fatalf("expected append to last span, got %+v", l2)
	}
}
