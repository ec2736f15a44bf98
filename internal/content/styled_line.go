// Package content implements the editable styled-content engine backing
// the YAML view (spec §4.6): styled spans per line, three index-synchronized
// mirrors, incremental width tracking, time-coalesced undo/redo, search and
// a highlight-scheduling protocol that tolerates a reply racing new edits.
//
// Grounded on the original implementation's
// ui/presentation/content/styled_line.rs, ui/presentation/content/edit.rs
// and ui/views/yaml/{content,undo}.rs.
package content

import "strings"

// Style is the opaque per-span style the syntax highlighter attaches.
// Rendering (color/attribute resolution) happens in the TUI layer; the
// content engine only ever compares and carries Style values.
type Style struct {
	FgIndex int
	Bold    bool
}

// Span is one (style, text) run within a StyledLine.
type Span struct {
	Style Style
	Text  string
}

// StyledLine is an ordered sequence of styled spans, addressed throughout
// the engine by character position, never by byte offset.
type StyledLine []Span

// StyleFallback controls what happens when appending to the end of a
// StyledLine: if the last span's style equals Excluded, a new span is
// started with Fallback's style instead of extending the last one.
type StyleFallback struct {
	Excluded Style
	Fallback Style
}

// Len returns the number of characters (runes) across all spans.
func (l StyledLine) Len() int {
	n := 0
	for _, s := range l {
		n += len([]rune(s.Text))
	}
	return n
}

// spanAt locates the span and the in-span rune offset containing character
// index idx, walking by rune count (not byte length).
func spanAt(l StyledLine, idx int) (spanIndex, runeOffset int, ok bool) {
	current := 0
	for i, s := range l {
		n := len([]rune(s.Text))
		if current+n >= idx {
			return i, idx - current, true
		}
		current += n
	}
	return 0, 0, false
}

// InsertString inserts s into the line at character position idx.
func (l *StyledLine) InsertString(idx int, s string) {
	spans := *l
	si, ro, ok := spanAt(spans, idx)
	if !ok {
		if len(spans) == 0 && idx == 0 {
			*l = StyledLine{{Text: s}}
		}
		return
	}
	r := []rune(spans[si].Text)
	spans[si].Text = string(r[:ro]) + s + string(r[ro:])
}

// InsertChar inserts a single rune at character position idx.
func (l *StyledLine) InsertChar(idx int, ch rune) {
	l.InsertString(idx, string(ch))
}

// PushString appends s to the end of the line, starting a new span if the
// last span's style is excluded per fallback.
func (l *StyledLine) PushString(s string, fallback StyleFallback) {
	spans := *l
	if n := len(spans); n > 0 && spans[n-1].Style != fallback.Excluded {
		spans[n-1].Text += s
		return
	}
	*l = append(spans, Span{Style: fallback.Fallback, Text: s})
}

// PushChar appends a single rune, same fallback rule as PushString.
func (l *StyledLine) PushChar(ch rune, fallback StyleFallback) {
	l.PushString(string(ch), fallback)
}

// RemoveAt removes the character at position idx.
func (l *StyledLine) RemoveAt(idx int) {
	spans := *l
	current := 0
	for i := range spans {
		r := []rune(spans[i].Text)
		n := len(r)
		if current+n > idx {
			off := idx - current
			spans[i].Text = string(r[:off]) + string(r[off+1:])
			return
		}
		current += n
	}
}

// Truncate shortens the line to newLen characters.
func (l *StyledLine) Truncate(newLen int) {
	spans := *l
	current := 0
	for i := range spans {
		r := []rune(spans[i].Text)
		n := len(r)
		if current+n > newLen {
			spans[i].Text = string(r[:newLen-current])
			*l = spans[:i+1]
			return
		}
		current += n
	}
}

// Drain removes the character range [start, end) from the line in bulk.
func (l *StyledLine) Drain(start, end int) {
	spans := *l
	removeStart, removeEnd := len(spans), -1
	current := 0

	for i := range spans {
		r := []rune(spans[i].Text)
		n := len(r)

		switch {
		case current+n <= start:
			// entirely before the drained range
		case current <= start:
			drainFrom := start - current
			if current+n >= end {
				drainTo := end - current
				spans[i].Text = string(r[:drainFrom]) + string(r[drainTo:])
				removeStart = i + 1
			} else if drainFrom == 0 {
				removeStart = i
			} else {
				spans[i].Text = string(r[:drainFrom])
				removeStart = i + 1
			}
		case current >= end:
			goto done
		case current+n >= end:
			drainTo := end - current
			if drainTo > 0 {
				spans[i].Text = string(r[drainTo:])
			}
			goto done
		}

		removeEnd = i
		current += n
	}

done:
	if removeStart <= removeEnd && removeEnd >= 0 {
		*l = append(spans[:removeStart], spans[removeEnd+1:]...)
	}
}

// Second splits the line at character idx and returns the suffix as a new
// StyledLine; the receiver is left untouched (the caller truncates it).
func (l StyledLine) Second(idx int) StyledLine {
	result := make(StyledLine, 0, len(l))
	current := 0
	found := false
	for _, s := range l {
		r := []rune(s.Text)
		n := len(r)
		if found {
			result = append(result, Span{Style: s.Style, Text: s.Text})
		} else if current+n > idx {
			result = append(result, Span{Style: s.Style, Text: string(r[idx-current:])})
			found = true
		}
		current += n
	}
	return result
}

// PlainText concatenates every span's text with no styling.
func (l StyledLine) PlainText() string {
	var b strings.Builder
	for _, s := range l {
		b.WriteString(s.Text)
	}
	return b.String()
}
