package redline

import (
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// ChangeKind classifies an extracted revision.
type ChangeKind int

const (
	ChangeTextInserted ChangeKind = iota
	ChangeTextDeleted
	ChangeTextReplaced
	ChangeFormatChanged
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeTextInserted:
		return "TextInserted"
	case ChangeTextDeleted:
		return "TextDeleted"
	case ChangeTextReplaced:
		return "TextReplaced"
	case ChangeFormatChanged:
		return "FormatChanged"
	}
	return "Unknown"
}

// Change is one extracted revision with its locus inside the document.
type Change struct {
	Kind           ChangeKind `json:"kind"`
	Part           string     `json:"part"`
	RevisionID     int        `json:"revision_id"`
	Author         string     `json:"author"`
	Date           string     `json:"date"`
	ParagraphIndex int        `json:"paragraph_index"`
	TableRow       int        `json:"table_row"`
	TableCell      int        `json:"table_cell"`
	InFootnote     bool       `json:"in_footnote,omitempty"`
	InEndnote      bool       `json:"in_endnote,omitempty"`
	InTextbox      bool       `json:"in_textbox,omitempty"`
	OldText        string     `json:"old_text,omitempty"`
	NewText        string     `json:"new_text,omitempty"`
	OldWordCount   int        `json:"old_word_count"`
	NewWordCount   int        `json:"new_word_count"`
}

// locus tracks where the extractor currently is in the tree.
type locus struct {
	part       string
	paragraph  int
	tableRow   int
	tableCell  int
	inFootnote bool
	inEndnote  bool
	inTextbox  bool
}

// ExtractChanges walks a decorated tree and emits its revisions in document
// order. Rows and cells are numbered from zero within the nearest table;
// outside tables both indices are -1.
func ExtractChanges(body *etree.Element, part string) []Change {
	ex := &extractor{loc: locus{
		part:      part,
		paragraph: -1,
		tableRow:  -1,
		tableCell: -1,
	}}
	switch part {
	case "word/footnotes.xml":
		ex.loc.inFootnote = true
	case "word/endnotes.xml":
		ex.loc.inEndnote = true
	}
	ex.walk(body)
	sortChanges(ex.changes)
	return ex.changes
}

type extractor struct {
	loc     locus
	changes []Change
}

func (ex *extractor) walk(e *etree.Element) {
	for _, child := range childElements(e) {
		switch child.Tag {
		case "p":
			ex.loc.paragraph++
			ex.walk(child)
		case "tbl":
			saved := ex.loc
			ex.loc.tableRow = -1
			ex.loc.tableCell = -1
			ex.walk(child)
			ex.loc.tableRow = saved.tableRow
			ex.loc.tableCell = saved.tableCell
		case "tr":
			ex.loc.tableRow++
			ex.loc.tableCell = -1
			ex.walk(child)
		case "tc":
			ex.loc.tableCell++
			ex.walk(child)
		case "txbxContent":
			saved := ex.loc.inTextbox
			ex.loc.inTextbox = true
			ex.walk(child)
			ex.loc.inTextbox = saved
		case "ins":
			ex.emitText(child, ChangeTextInserted)
		case "del":
			ex.emitText(child, ChangeTextDeleted)
		case "rPrChange", "pPrChange":
			ex.emitFormat(child)
		default:
			ex.walk(child)
		}
	}
}

// emitText records an ins or del wrapper. Paragraph-mark revisions live
// inside pPr/rPr and carry no text; they are reported with empty text so
// the change list still reflects the structural edit.
func (ex *extractor) emitText(rev *etree.Element, kind ChangeKind) {
	text := collectText(rev, kind == ChangeTextDeleted)
	c := Change{
		Kind:           kind,
		Part:           ex.loc.part,
		RevisionID:     revisionID(rev),
		Author:         rev.SelectAttrValue("w:author", ""),
		Date:           rev.SelectAttrValue("w:date", ""),
		ParagraphIndex: ex.loc.paragraph,
		TableRow:       ex.loc.tableRow,
		TableCell:      ex.loc.tableCell,
		InFootnote:     ex.loc.inFootnote,
		InEndnote:      ex.loc.inEndnote,
		InTextbox:      ex.loc.inTextbox,
	}
	if kind == ChangeTextInserted {
		c.NewText = text
		c.NewWordCount = countWords(text)
	} else {
		c.OldText = text
		c.OldWordCount = countWords(text)
	}
	ex.changes = append(ex.changes, c)
	// textboxes under a drawing inside the wrapper carry their own revisions
	ex.walkNested(rev)
}

// walkNested only descends looking for txbxContent so revisions inside
// textboxes wrapped by an outer ins/del are not double counted.
func (ex *extractor) walkNested(e *etree.Element) {
	for _, child := range childElements(e) {
		if child.Tag == "txbxContent" {
			saved := ex.loc.inTextbox
			ex.loc.inTextbox = true
			ex.walk(child)
			ex.loc.inTextbox = saved
			continue
		}
		ex.walkNested(child)
	}
}

func (ex *extractor) emitFormat(rev *etree.Element) {
	ex.changes = append(ex.changes, Change{
		Kind:           ChangeFormatChanged,
		Part:           ex.loc.part,
		RevisionID:     revisionID(rev),
		Author:         rev.SelectAttrValue("w:author", ""),
		Date:           rev.SelectAttrValue("w:date", ""),
		ParagraphIndex: ex.loc.paragraph,
		TableRow:       ex.loc.tableRow,
		TableCell:      ex.loc.tableCell,
		InFootnote:     ex.loc.inFootnote,
		InEndnote:      ex.loc.inEndnote,
		InTextbox:      ex.loc.inTextbox,
		OldText:        formatChangeSummary(rev),
	})
}

// formatChangeSummary renders the "before" properties of a rPrChange or
// pPrChange as a compact list of property names.
func formatChangeSummary(rev *etree.Element) string {
	var names []string
	for _, child := range childElements(rev) {
		for _, prop := range childElements(child) {
			names = append(names, prop.Tag)
		}
	}
	return strings.Join(names, ",")
}

func revisionID(e *etree.Element) int {
	id, err := strconv.Atoi(e.SelectAttrValue("w:id", ""))
	if err != nil {
		return -1
	}
	return id
}

// collectText concatenates the visible text under a revision wrapper.
// Deleted content stores its text in delText.
func collectText(e *etree.Element, deleted bool) string {
	var sb strings.Builder
	var visit func(*etree.Element)
	visit = func(el *etree.Element) {
		for _, child := range childElements(el) {
			switch child.Tag {
			case "t":
				if !deleted {
					sb.WriteString(child.Text())
				}
			case "delText":
				if deleted {
					sb.WriteString(child.Text())
				}
			case "txbxContent":
				// textbox revisions are reported separately
			default:
				visit(child)
			}
		}
	}
	visit(e)
	return sb.String()
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

// sortChanges orders by paragraph; the stable sort keeps changes within a
// paragraph in walk order, which is document order.
func sortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].ParagraphIndex < changes[j].ParagraphIndex
	})
}
