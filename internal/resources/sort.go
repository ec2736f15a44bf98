package resources

import (
	"sort"

	"github.com/fioletoven/b4n/internal/k8s"
)

// columnKey resolves the sort key for item's col-th column: the NAME column
// and an out-of-range col resolve to the row name itself, every other column
// to that column's SortKey (empty when the row has no value for it).
func columnKey(item k8s.ResourceItem, h Header, col int) string {
	if col < 0 || col >= len(h.Columns) {
		return item.Name
	}
	name := h.Columns[col].Name
	if name == "NAME" {
		return item.Name
	}
	if v, ok := item.Data.Columns[name]; ok {
		return v.SortKey
	}
	return ""
}

// SortItems orders items in place by the header's active sort column and
// direction, honoring HasReversedOrder columns (spec §4.7, §8: sort is
// idempotent when repeated with the same column/direction).
func SortItems(items []k8s.ResourceItem, h Header) {
	if len(h.Columns) == 0 {
		return
	}
	col := h.Sort.Column
	desc := h.Sort.EffectiveDescending(h.Columns[col])
	sort.SliceStable(items, func(i, j int) bool {
		ki, kj := columnKey(items[i], h, col), columnKey(items[j], h, col)
		if desc {
			return ki > kj
		}
		return ki < kj
	})
}
