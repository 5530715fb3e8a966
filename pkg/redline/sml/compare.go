package sml

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/benjaminschreck/go-redline/pkg/redline"
	"github.com/benjaminschreck/go-redline/pkg/redline/ooxml"
)

// EventKind classifies a spreadsheet change event.
type EventKind int

const (
	SheetAdded EventKind = iota
	SheetDeleted
	SheetRenamed
	CellAdded
	CellDeleted
	ValueChanged
	FormulaChanged
	FormatChanged
	RowInserted
	RowDeleted
	ColumnInserted
	ColumnDeleted
	CommentChanged
	HyperlinkChanged
	MergedCellsChanged
	DataValidationChanged
)

var eventKindNames = map[EventKind]string{
	SheetAdded:            "SheetAdded",
	SheetDeleted:          "SheetDeleted",
	SheetRenamed:          "SheetRenamed",
	CellAdded:             "CellAdded",
	CellDeleted:           "CellDeleted",
	ValueChanged:          "ValueChanged",
	FormulaChanged:        "FormulaChanged",
	FormatChanged:         "FormatChanged",
	RowInserted:           "RowInserted",
	RowDeleted:            "RowDeleted",
	ColumnInserted:        "ColumnInserted",
	ColumnDeleted:         "ColumnDeleted",
	CommentChanged:        "CommentChanged",
	HyperlinkChanged:      "HyperlinkChanged",
	MergedCellsChanged:    "MergedCellsChanged",
	DataValidationChanged: "DataValidationChanged",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Event is one detected spreadsheet change.
type Event struct {
	Kind     EventKind `json:"kind"`
	Sheet    string    `json:"sheet"`
	Ref      string    `json:"ref,omitempty"`
	OldValue string    `json:"old_value,omitempty"`
	NewValue string    `json:"new_value,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case SheetAdded, SheetDeleted:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Sheet)
	case SheetRenamed:
		return fmt.Sprintf("SheetRenamed(%q, %q)", e.OldValue, e.NewValue)
	case RowInserted, RowDeleted, ColumnInserted, ColumnDeleted:
		return fmt.Sprintf("%s(%s) on %s", e.Kind, e.Ref, e.Sheet)
	default:
		return fmt.Sprintf("%s(%q, %q, %q) on %s", e.Kind, e.Ref, e.OldValue, e.NewValue, e.Sheet)
	}
}

// Compare diffs two spreadsheet packages and returns the detected events in
// workbook order.
func Compare(older, newer []byte, settings redline.Settings) ([]Event, error) {
	oldPkg, err := ooxml.Open(older)
	if err != nil {
		return nil, redline.NewPackageError("older", err)
	}
	newPkg, err := ooxml.Open(newer)
	if err != nil {
		return nil, redline.NewPackageError("newer", err)
	}
	if oldPkg.Kind() != ooxml.KindSpreadsheet || newPkg.Kind() != ooxml.KindSpreadsheet {
		return nil, redline.NewInvalidPackageError("xl/workbook.xml",
			fmt.Sprintf("expected spreadsheet packages, got %s and %s", oldPkg.Kind(), newPkg.Kind()))
	}
	opts := SignatureOptions{
		RowSampleSize:      settings.RowSignatureSampleSize,
		WithComments:       settings.CompareComments,
		WithMergedCells:    settings.CompareMergedCells,
		WithHyperlinks:     settings.CompareHyperlinks,
		WithDataValidation: settings.CompareDataValidation,
	}
	oldWb, err := SignWorkbook(oldPkg, opts)
	if err != nil {
		return nil, err
	}
	newWb, err := SignWorkbook(newPkg, opts)
	if err != nil {
		return nil, err
	}
	return compareWorkbooks(oldWb, newWb, settings), nil
}

func compareWorkbooks(oldWb, newWb *WorkbookSignature, settings redline.Settings) []Event {
	oldByName := sheetsByName(oldWb)
	newByName := sheetsByName(newWb)

	// pair leftover sheets by content hash before declaring them added
	// or deleted, so a rename is not reported as delete+add
	renamedOldToNew := map[string]string{}
	renamedNewToOld := map[string]string{}
	for _, oldSheet := range oldWb.Sheets {
		if _, ok := newByName[oldSheet.Name]; ok {
			continue
		}
		for _, newSheet := range newWb.Sheets {
			if _, ok := oldByName[newSheet.Name]; ok {
				continue
			}
			if _, taken := renamedNewToOld[newSheet.Name]; taken {
				continue
			}
			if oldSheet.Signature.ContentHash == newSheet.Signature.ContentHash {
				renamedOldToNew[oldSheet.Name] = newSheet.Name
				renamedNewToOld[newSheet.Name] = oldSheet.Name
				break
			}
		}
	}

	var events []Event
	for _, oldSheet := range oldWb.Sheets {
		if newName, ok := renamedOldToNew[oldSheet.Name]; ok {
			events = append(events, Event{
				Kind:     SheetRenamed,
				Sheet:    newName,
				OldValue: oldSheet.Name,
				NewValue: newName,
			})
			continue
		}
		if _, ok := newByName[oldSheet.Name]; !ok {
			events = append(events, Event{Kind: SheetDeleted, Sheet: oldSheet.Name})
		}
	}
	for _, newSheet := range newWb.Sheets {
		if _, renamed := renamedNewToOld[newSheet.Name]; renamed {
			continue
		}
		if _, ok := oldByName[newSheet.Name]; !ok {
			events = append(events, Event{Kind: SheetAdded, Sheet: newSheet.Name})
		}
	}
	for _, newSheet := range newWb.Sheets {
		oldName := newSheet.Name
		if prev, ok := renamedNewToOld[newSheet.Name]; ok {
			oldName = prev
		}
		oldSheet, ok := oldByName[oldName]
		if !ok {
			continue
		}
		events = append(events, compareSheets(oldSheet.Signature, newSheet.Signature, newSheet.Name, settings)...)
	}
	return events
}

func sheetsByName(wb *WorkbookSignature) map[string]SheetInfo {
	out := make(map[string]SheetInfo, len(wb.Sheets))
	for _, s := range wb.Sheets {
		out[s.Name] = s
	}
	return out
}

func compareSheets(oldWs, newWs *WorksheetSignature, sheet string, settings redline.Settings) []Event {
	var events []Event

	rowMap := identityRowMap(oldWs)
	if settings.EnableRowAlignment {
		al := alignSignatures(rowHashes(oldWs.Rows), rowHashes(newWs.Rows))
		rowMap = map[int]int{}
		for _, p := range al.pairs {
			rowMap[oldWs.Rows[p[0]].Index] = newWs.Rows[p[1]].Index
		}
		for _, i := range al.deleted {
			events = append(events, Event{
				Kind:  RowDeleted,
				Sheet: sheet,
				Ref:   strconv.Itoa(oldWs.Rows[i].Index),
			})
		}
		for _, i := range al.inserted {
			events = append(events, Event{
				Kind:  RowInserted,
				Sheet: sheet,
				Ref:   strconv.Itoa(newWs.Rows[i].Index),
			})
		}
	}

	colMap := identityColMap(oldWs)
	if settings.EnableColumnAlignment {
		al := alignSignatures(colHashes(oldWs.Cols), colHashes(newWs.Cols))
		colMap = map[int]int{}
		for _, p := range al.pairs {
			colMap[oldWs.Cols[p[0]].Index] = newWs.Cols[p[1]].Index
		}
		for _, i := range al.deleted {
			events = append(events, Event{
				Kind:  ColumnDeleted,
				Sheet: sheet,
				Ref:   ColumnName(oldWs.Cols[i].Index),
			})
		}
		for _, i := range al.inserted {
			events = append(events, Event{
				Kind:  ColumnInserted,
				Sheet: sheet,
				Ref:   ColumnName(newWs.Cols[i].Index),
			})
		}
	}

	events = append(events, compareCells(oldWs, newWs, sheet, rowMap, colMap,
		settings.EnableRowAlignment, settings.EnableColumnAlignment)...)

	for ref, oldComment := range oldWs.Comments {
		if newComment, ok := newWs.Comments[ref]; !ok || newComment != oldComment {
			events = append(events, Event{
				Kind: CommentChanged, Sheet: sheet, Ref: ref,
				OldValue: oldComment, NewValue: newWs.Comments[ref],
			})
		}
	}
	for ref, newComment := range newWs.Comments {
		if _, ok := oldWs.Comments[ref]; !ok {
			events = append(events, Event{Kind: CommentChanged, Sheet: sheet, Ref: ref, NewValue: newComment})
		}
	}
	for ref, oldTarget := range oldWs.Hyperlinks {
		if newTarget, ok := newWs.Hyperlinks[ref]; !ok || newTarget != oldTarget {
			events = append(events, Event{
				Kind: HyperlinkChanged, Sheet: sheet, Ref: ref,
				OldValue: oldTarget, NewValue: newWs.Hyperlinks[ref],
			})
		}
	}
	for ref, newTarget := range newWs.Hyperlinks {
		if _, ok := oldWs.Hyperlinks[ref]; !ok {
			events = append(events, Event{Kind: HyperlinkChanged, Sheet: sheet, Ref: ref, NewValue: newTarget})
		}
	}
	if !equalStrings(oldWs.MergedCells, newWs.MergedCells) {
		events = append(events, Event{Kind: MergedCellsChanged, Sheet: sheet})
	}
	for ref, oldRule := range oldWs.DataValidations {
		if newRule, ok := newWs.DataValidations[ref]; !ok || newRule != oldRule {
			events = append(events, Event{
				Kind: DataValidationChanged, Sheet: sheet, Ref: ref,
				OldValue: oldRule, NewValue: newWs.DataValidations[ref],
			})
		}
	}
	for ref, newRule := range newWs.DataValidations {
		if _, ok := oldWs.DataValidations[ref]; !ok {
			events = append(events, Event{Kind: DataValidationChanged, Sheet: sheet, Ref: ref, NewValue: newRule})
		}
	}
	return events
}

// compareCells walks the union of both cell maps with old refs remapped
// through the row and column alignment. Cells in deleted rows or columns
// are covered by the row/column events and skipped here.
func compareCells(oldWs, newWs *WorksheetSignature, sheet string, rowMap, colMap map[int]int, rowsAligned, colsAligned bool) []Event {
	var events []Event
	matchedNew := map[string]bool{}
	for _, c := range sortedCells(oldWs.Cells) {
		newRow, rowOK := rowMap[c.Row]
		newCol, colOK := colMap[c.Col]
		if !rowOK || !colOK {
			continue
		}
		newRef := CellRef(newRow, newCol)
		matchedNew[newRef] = true
		nc, ok := newWs.Cells[newRef]
		if !ok {
			events = append(events, Event{Kind: CellDeleted, Sheet: sheet, Ref: c.Ref, OldValue: c.Value})
			continue
		}
		if c.Value != nc.Value {
			events = append(events, Event{Kind: ValueChanged, Sheet: sheet, Ref: newRef, OldValue: c.Value, NewValue: nc.Value})
		}
		if c.Formula != nc.Formula {
			events = append(events, Event{Kind: FormulaChanged, Sheet: sheet, Ref: newRef, OldValue: c.Formula, NewValue: nc.Formula})
		}
		if c.Format != nc.Format {
			events = append(events, Event{Kind: FormatChanged, Sheet: sheet, Ref: newRef, OldValue: c.Format, NewValue: nc.Format})
		}
	}
	newRows := alignedValueSet(rowMap)
	newCols := alignedValueSet(colMap)
	for _, c := range sortedCells(newWs.Cells) {
		if matchedNew[c.Ref] {
			continue
		}
		if rowsAligned && !newRows[c.Row] {
			// cell belongs to an inserted row, already reported
			continue
		}
		if colsAligned && !newCols[c.Col] {
			continue
		}
		events = append(events, Event{Kind: CellAdded, Sheet: sheet, Ref: c.Ref, NewValue: c.Value})
	}
	return events
}

func alignedValueSet(m map[int]int) map[int]bool {
	out := make(map[int]bool, len(m))
	for _, v := range m {
		out[v] = true
	}
	return out
}

func sortedCells(cells map[string]CellSignature) []CellSignature {
	out := make([]CellSignature, 0, len(cells))
	for _, c := range cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

func identityRowMap(ws *WorksheetSignature) map[int]int {
	out := make(map[int]int, len(ws.Rows))
	for _, r := range ws.Rows {
		out[r.Index] = r.Index
	}
	return out
}

func identityColMap(ws *WorksheetSignature) map[int]int {
	out := make(map[int]int, len(ws.Cols))
	for _, c := range ws.Cols {
		out[c.Index] = c.Index
	}
	return out
}

func rowHashes(rows []RowSignature) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Hash
	}
	return out
}

func colHashes(cols []ColumnSignature) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Hash
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// alignment pairs indices between two signature sequences. Anchors come
// from an LCS over the hashes; leftovers between anchors pair positionally
// so edited rows still compare cell by cell.
type alignment struct {
	pairs    [][2]int
	deleted  []int
	inserted []int
}

func alignSignatures(oldSigs, newSigs []string) alignment {
	anchors := longestCommonSubsequence(oldSigs, newSigs)
	var al alignment
	oi, ni := 0, 0
	consumeGap := func(oldEnd, newEnd int) {
		for oi < oldEnd && ni < newEnd {
			al.pairs = append(al.pairs, [2]int{oi, ni})
			oi++
			ni++
		}
		for ; oi < oldEnd; oi++ {
			al.deleted = append(al.deleted, oi)
		}
		for ; ni < newEnd; ni++ {
			al.inserted = append(al.inserted, ni)
		}
	}
	for _, a := range anchors {
		consumeGap(a[0], a[1])
		al.pairs = append(al.pairs, a)
		oi, ni = a[0]+1, a[1]+1
	}
	consumeGap(len(oldSigs), len(newSigs))
	return al
}

// longestCommonSubsequence returns matched index pairs in order.
func longestCommonSubsequence(a, b []string) [][2]int {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}
	var pairs [][2]int
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}
