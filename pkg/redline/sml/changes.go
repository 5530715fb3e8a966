package sml

import (
	"fmt"
	"sort"
	"strings"
)

// cellEventKinds are the kinds eligible for range collapsing.
var cellEventKinds = map[EventKind]bool{
	CellAdded:      true,
	CellDeleted:    true,
	ValueChanged:   true,
	FormulaChanged: true,
	FormatChanged:  true,
}

// CollapseRanges merges runs of same-kind cell events on one sheet that
// cover contiguous cells in a single row or column into one event whose
// Ref is an A1:C1 style range. Other events pass through unchanged.
func CollapseRanges(events []Event) []Event {
	var out []Event
	i := 0
	for i < len(events) {
		e := events[i]
		if !cellEventKinds[e.Kind] {
			out = append(out, e)
			i++
			continue
		}
		j := i + 1
		for j < len(events) && contiguous(events[j-1], events[j]) {
			j++
		}
		if j-i > 1 {
			first, last := events[i], events[j-1]
			out = append(out, Event{
				Kind:  first.Kind,
				Sheet: first.Sheet,
				Ref:   first.Ref + ":" + last.Ref,
			})
		} else {
			out = append(out, e)
		}
		i = j
	}
	return out
}

// contiguous reports whether b extends a by one cell along a row or column.
func contiguous(a, b Event) bool {
	if a.Kind != b.Kind || a.Sheet != b.Sheet || !cellEventKinds[b.Kind] {
		return false
	}
	ar, ac, err1 := ParseCellRef(a.Ref)
	br, bc, err2 := ParseCellRef(b.Ref)
	if err1 != nil || err2 != nil {
		return false
	}
	sameRow := ar == br && bc == ac+1
	sameCol := ac == bc && br == ar+1
	return sameRow || sameCol
}

// FormatEvents renders events as display lines, sorted by sheet then
// reference, with ranges collapsed.
func FormatEvents(events []Event) []string {
	collapsed := CollapseRanges(events)
	sort.SliceStable(collapsed, func(i, j int) bool {
		if collapsed[i].Sheet != collapsed[j].Sheet {
			return collapsed[i].Sheet < collapsed[j].Sheet
		}
		return refLess(collapsed[i].Ref, collapsed[j].Ref)
	})
	out := make([]string, len(collapsed))
	for i, e := range collapsed {
		out[i] = e.String()
	}
	return out
}

func refLess(a, b string) bool {
	ar, ac, err1 := ParseCellRef(strings.SplitN(a, ":", 2)[0])
	br, bc, err2 := ParseCellRef(strings.SplitN(b, ":", 2)[0])
	if err1 != nil || err2 != nil {
		return a < b
	}
	if ar != br {
		return ar < br
	}
	return ac < bc
}

// Summary counts events by kind for the CLI's one-line report.
func Summary(events []Event) string {
	counts := map[EventKind]int{}
	for _, e := range events {
		counts[e.Kind]++
	}
	kinds := make([]EventKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, " ")
}
