package content

import (
	"hash/fnv"
	"strings"
)

// HighlightContextLines is the number of lines of context added on each
// side of the modified-line range before a partial re-highlight request is
// sent (spec §4.6).
const HighlightContextLines = 200

// HighlightRequest is sent to the Executor (or, in tests, any consumer
// implementing Highlighter) to re-derive styled spans for a snapshot of
// plain lines.
type HighlightRequest struct {
	// RelativeStart is the offset of the first truly-modified line within
	// Lines (Lines itself may start earlier, from the context expansion).
	RelativeStart int
	Lines         []string
}

// HighlightResponse carries back the styled fragment for the requested
// snapshot, or an error if highlighting failed (non-fatal per spec §7).
type HighlightResponse struct {
	Styled []StyledLine
	Err    error
}

// Highlighter is the opaque, externally-supplied re-highlighting backend
// (spec §1 Non-goal boundary: "the syntax-highlighter grammar set").
// Requests are answered asynchronously; the document never blocks on a
// reply.
type Highlighter interface {
	// Submit starts highlighting req and delivers the result on the
	// returned channel exactly once.
	Submit(req HighlightRequest) <-chan HighlightResponse
}

type requestedHighlight struct {
	first, last int // absolute line indices requested, pre-context-expansion
	response    <-chan HighlightResponse
}

// Document is the editable styled-content engine backing the YAML view.
// It maintains three parallel, index-synchronized mirrors: Styled (for
// rendering), Plain (ground truth for character positions) and Lowercase
// (for case-insensitive search).
type Document struct {
	Styled    []StyledLine
	Plain     []string
	Lowercase []string

	maxLineIndex int
	maxLineWidth int

	modified map[int]struct{}
	requested *requestedHighlight

	undo []Undo
	redo [][]Undo

	isEditable bool
	fallback   StyleFallback

	highlighter Highlighter
}

// NewDocument builds a Document from an initial styled rendering. plain is
// derived from styled; lowercase is derived from plain.
func NewDocument(styled []StyledLine, isEditable bool, fallback StyleFallback, highlighter Highlighter) *Document {
	d := &Document{
		Styled:      styled,
		isEditable:  isEditable,
		fallback:    fallback,
		highlighter: highlighter,
		modified:    map[int]struct{}{},
	}
	d.Plain = make([]string, len(styled))
	d.Lowercase = make([]string, len(styled))
	for i, line := range styled {
		d.Plain[i] = line.PlainText()
		d.Lowercase[i] = strings.ToLower(d.Plain[i])
	}
	d.recalculateLongestLine()
	return d
}

func (d *Document) IsEditable() bool { return d.isEditable }

// Len returns the number of lines.
func (d *Document) Len() int { return len(d.Plain) }

// LineSize returns the character count of line lineNo.
func (d *Document) LineSize(lineNo int) int {
	if lineNo < 0 || lineNo >= len(d.Plain) {
		return 0
	}
	return len([]rune(d.Plain[lineNo]))
}

// MaxSize returns the widest line's width + 1 (room for the cursor past
// end-of-line).
func (d *Document) MaxSize() int { return d.maxLineWidth + 1 }

// Page returns count StyledLines starting at start; an out-of-range start
// returns an empty slice (spec §8 boundary behavior).
func (d *Document) Page(start, count int) []StyledLine {
	if start >= len(d.Styled) {
		return nil
	}
	end := start + count
	if end > len(d.Styled) {
		end = len(d.Styled)
	}
	return d.Styled[start:end]
}

// Hash hashes the Plain mirror, used by callers to detect "no changes since
// open" (e.g. before writing back to the API).
func (d *Document) Hash() uint64 {
	h := fnv.New64a()
	for _, line := range d.Plain {
		_, _ = h.Write([]byte(line))
		_, _ = h.Write([]byte{'\n'})
	}
	return h.Sum64()
}

// ToPlainText renders the Selection range as a plain string.
func (d *Document) ToPlainText(sel Selection) string {
	start, end := sel.Sorted()
	if start.Y == end.Y {
		r := []rune(d.Plain[start.Y])
		e := end.X
		if e > len(r) {
			e = len(r)
		}
		if start.X > e {
			return ""
		}
		return string(r[start.X:e])
	}

	var b strings.Builder
	first := []rune(d.Plain[start.Y])
	if start.X <= len(first) {
		b.WriteString(string(first[start.X:]))
	}
	b.WriteByte('\n')
	for y := start.Y + 1; y < end.Y; y++ {
		b.WriteString(d.Plain[y])
		b.WriteByte('\n')
	}
	last := []rune(d.Plain[end.Y])
	e := end.X
	if e > len(last) {
		e = len(last)
	}
	b.WriteString(string(last[:e]))
	return b.String()
}

func (d *Document) markModified(lineNo int) {
	width := d.LineSize(lineNo)

	if width > d.maxLineWidth || (lineNo == d.maxLineIndex && width >= d.maxLineWidth) {
		d.maxLineIndex = lineNo
		d.maxLineWidth = width
	} else if lineNo == d.maxLineIndex && width < d.maxLineWidth {
		// the previously-widest line shrank: full rescan required.
		d.recalculateLongestLine()
	}

	d.modified[lineNo] = struct{}{}
}

func (d *Document) recalculateLongestLine() {
	d.maxLineIndex = 0
	d.maxLineWidth = 0
	for i, line := range d.Plain {
		n := len([]rune(line))
		if n >= d.maxLineWidth {
			d.maxLineIndex = i
			d.maxLineWidth = n
		}
	}
}

// runeSlice is a convenience wrapper making the character vs.
// byte-offset boundary explicit at every call site (spec §9).
func runeSlice(s string) []rune { return []rune(s) }
