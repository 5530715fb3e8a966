package redline

import (
	"sort"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// The decorator converts status markers into native revision markup and
// produces a schema-valid document: ins/del wrapping, child reordering per
// the OOXML order tables, global revision renumbering, and scaffolding
// removal.

// RevisionIDGenerator hands out the document-unique numeric ids stamped on
// revision elements. It is passed explicitly through decoration; there is
// no process-global counter.
type RevisionIDGenerator struct {
	next int
}

// NewRevisionIDGenerator seeds a generator.
func NewRevisionIDGenerator(start int) *RevisionIDGenerator {
	return &RevisionIDGenerator{next: start}
}

// Next returns the next revision id.
func (g *RevisionIDGenerator) Next() int {
	id := g.next
	g.next++
	return id
}

// Elements that carry a revision id.
var revisionIDElements = map[string]bool{
	"ins":                true,
	"del":                true,
	"rPrChange":          true,
	"pPrChange":          true,
	"tblPrChange":        true,
	"tblGridChange":      true,
	"trPrChange":         true,
	"tcPrChange":         true,
	"sectPrChange":       true,
	"numberingChange":    true,
	"cellIns":            true,
	"cellDel":            true,
	"cellMerge":          true,
	"moveFrom":           true,
	"moveTo":             true,
	"moveFromRangeStart": true,
	"moveFromRangeEnd":   true,
	"moveToRangeStart":   true,
	"moveToRangeEnd":     true,
}

// Structural elements never wrapped in ins/del; their revisions ride on
// their property elements instead.
var structuralElements = map[string]bool{
	"p":           true,
	"tbl":         true,
	"tr":          true,
	"tc":          true,
	"txbxContent": true,
	"pPr":         true,
	"rPr":         true,
	"tblPr":       true,
	"trPr":        true,
	"tcPr":        true,
	"tblGrid":     true,
	"sectPr":      true,
}

// Decorate rewrites a coalesced tree in place into tracked-changes markup
// stamped with the given author and date. Revision ids are assigned
// provisionally during wrapping, then renumbered sequentially through gen
// so that ids stay unique across every part decorated with the same
// generator.
func Decorate(body *etree.Element, settings Settings, gen *RevisionIDGenerator) {
	d := &decorator{
		author: settings.Author,
		date:   revisionTimestamp(settings.DateTime),
		gen:    NewRevisionIDGenerator(0),
	}
	d.wrapRevisions(body)
	reorderChildren(body)
	d.gen = gen
	d.renumberRevisions(body)
	stripScaffolding(body)
}

type decorator struct {
	author string
	date   string
	gen    *RevisionIDGenerator
}

func (d *decorator) stamp(e *etree.Element) {
	e.CreateAttr("w:id", strconv.Itoa(d.gen.Next()))
	e.CreateAttr("w:author", d.author)
	e.CreateAttr("w:date", d.date)
}

// newRevisionElement creates an ins or del wrapper. The id is attached
// first; renumbering later rewrites its value but keeps the position.
func (d *decorator) newRevisionElement(name string) *etree.Element {
	e := etree.NewElement(name)
	d.stamp(e)
	return e
}

// wrapRevisions walks depth-first, wrapping every maximal run of sibling
// elements bearing the same non-Equal status into a single ins or del
// element, marking deleted and inserted paragraph marks and table rows,
// and rewriting format-change scaffolding into rPrChange.
func (d *decorator) wrapRevisions(e *etree.Element) {
	for _, c := range childElements(e) {
		d.wrapRevisions(c)
	}
	switch e.Tag {
	case "pPr":
		d.decorateParagraphMark(e)
	case "tr":
		d.decorateRow(e)
	case "r":
		d.decorateFormatChange(e)
	}
	d.wrapChildren(e)
}

// wrapChildren groups adjacent same-status children of e into revision
// wrappers.
func (d *decorator) wrapChildren(e *etree.Element) {
	if e.Tag == "ins" || e.Tag == "del" {
		return
	}
	children := childElements(e)
	i := 0
	for i < len(children) {
		status := wrappableStatus(children[i])
		if status == StatusNil {
			i++
			continue
		}
		j := i + 1
		for j < len(children) && wrappableStatus(children[j]) == status {
			j++
		}
		name := "w:ins"
		if status == StatusDeleted {
			name = "w:del"
		}
		wrapper := d.newRevisionElement(name)
		e.InsertChildAt(children[i].Index(), wrapper)
		for _, c := range children[i:j] {
			c.RemoveAttr(attrStatus)
			wrapper.AddChild(c)
		}
		i = j
	}
}

// wrappableStatus returns the status of an element eligible for ins/del
// wrapping, or StatusNil.
func wrappableStatus(e *etree.Element) Status {
	if structuralElements[e.Tag] {
		return StatusNil
	}
	switch e.SelectAttrValue(attrStatus, "") {
	case StatusDeleted.String():
		return StatusDeleted
	case StatusInserted.String():
		return StatusInserted
	}
	return StatusNil
}

// decorateParagraphMark turns a status-marked pPr into a deleted or
// inserted paragraph mark: the revision rides on pPr/rPr.
func (d *decorator) decorateParagraphMark(pPr *etree.Element) {
	status := pPr.SelectAttrValue(attrStatus, "")
	if status != StatusDeleted.String() && status != StatusInserted.String() {
		return
	}
	pPr.RemoveAttr(attrStatus)
	rPr := firstChild(pPr, "rPr")
	if rPr == nil {
		rPr = etree.NewElement("w:rPr")
		pPr.InsertChildAt(0, rPr)
	}
	name := "w:ins"
	if status == StatusDeleted.String() {
		name = "w:del"
	}
	rPr.InsertChildAt(0, d.newRevisionElement(name))
}

// decorateRow marks a whole-row revision in trPr.
func (d *decorator) decorateRow(tr *etree.Element) {
	status := tr.SelectAttrValue(attrStatus, "")
	if status != StatusDeleted.String() && status != StatusInserted.String() {
		return
	}
	tr.RemoveAttr(attrStatus)
	trPr := firstChild(tr, "trPr")
	if trPr == nil {
		trPr = etree.NewElement("w:trPr")
		tr.InsertChildAt(0, trPr)
	}
	name := "w:ins"
	if status == StatusDeleted.String() {
		name = "w:del"
	}
	trPr.AddChild(d.newRevisionElement(name))
}

// decorateFormatChange rewrites the coalescer's rPrBefore scaffolding into
// a schema-valid rPrChange inside the run's rPr.
func (d *decorator) decorateFormatChange(r *etree.Element) {
	if r.SelectAttrValue(attrStatus, "") == StatusFormatChanged.String() {
		r.RemoveAttr(attrStatus)
	}
	holder := firstChild(r, "rPrBefore")
	if holder == nil {
		return
	}
	removeElement(holder)
	rPr := firstChild(r, "rPr")
	if rPr == nil {
		rPr = etree.NewElement("w:rPr")
		r.InsertChildAt(0, rPr)
	}
	change := d.newRevisionElement("w:rPrChange")
	inner := change.CreateElement("w:rPr")
	if beforeRPr := firstChild(holder, "rPr"); beforeRPr != nil {
		for _, c := range childElements(beforeRPr) {
			inner.AddChild(c.Copy())
		}
	}
	rPr.AddChild(change)
}

// Child-order rank tables per the OOXML schema. Lower rank first; unknown
// children keep their relative order after the known ones.

var pPrOrder = rankMap("pStyle", "keepNext", "keepLines", "pageBreakBefore",
	"framePr", "widowControl", "numPr", "suppressLineNumbers", "pBdr", "shd",
	"tabs", "suppressAutoHyphens", "kinsoku", "wordWrap", "overflowPunct",
	"topLinePunct", "autoSpaceDE", "autoSpaceDN", "bidi", "adjustRightInd",
	"snapToGrid", "spacing", "ind", "contextualSpacing", "mirrorIndents",
	"suppressOverlap", "jc", "textDirection", "textAlignment",
	"textboxTightWrap", "outlineLvl", "divId", "cnfStyle", "rPr", "sectPr",
	"pPrChange")

var rPrOrder = rankMap("ins", "del", "rStyle", "rFonts", "b", "bCs", "i",
	"iCs", "caps", "smallCaps", "strike", "dstrike", "outline", "shadow",
	"emboss", "imprint", "noProof", "snapToGrid", "vanish", "webHidden",
	"color", "spacing", "w", "kern", "position", "sz", "szCs", "highlight",
	"u", "effect", "bdr", "shd", "fitText", "vertAlign", "rtl", "cs", "em",
	"lang", "eastAsianLayout", "specVanish", "oMath", "rPrChange")

var tblPrOrder = rankMap("tblStyle", "tblpPr", "tblOverlap", "bidiVisual",
	"tblStyleRowBandSize", "tblStyleColBandSize", "tblW", "jc",
	"tblCellSpacing", "tblInd", "tblBorders", "shd", "tblLayout",
	"tblCellMar", "tblLook", "tblCaption", "tblDescription", "tblPrChange")

var trPrOrder = rankMap("cnfStyle", "divId", "gridBefore", "gridAfter",
	"wBefore", "wAfter", "cantSplit", "trHeight", "tblHeader",
	"tblCellSpacing", "jc", "hidden", "ins", "del", "trPrChange")

var tcPrOrder = rankMap("cnfStyle", "tcW", "gridSpan", "hMerge", "vMerge",
	"tcBorders", "shd", "noWrap", "tcMar", "textDirection", "tcFitText",
	"vAlign", "hideMark", "headers", "cellIns", "cellDel", "cellMerge",
	"tcPrChange")

var tblBordersOrder = rankMap("top", "start", "left", "bottom", "end",
	"right", "insideH", "insideV")

var tcBordersOrder = rankMap("top", "start", "left", "bottom", "end",
	"right", "insideH", "insideV", "tl2br", "tr2bl")

var pBdrOrder = rankMap("top", "left", "bottom", "right", "between", "bar")

var childOrderTables = map[string]map[string]int{
	"pPr":        pPrOrder,
	"rPr":        rPrOrder,
	"tblPr":      tblPrOrder,
	"trPr":       trPrOrder,
	"tcPr":       tcPrOrder,
	"tblBorders": tblBordersOrder,
	"tcBorders":  tcBordersOrder,
	"pBdr":       pBdrOrder,
}

func rankMap(names ...string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// reorderChildren applies the child-order tables and promotes pPr/rPr to
// the first position of p and r without reordering remaining children.
func reorderChildren(e *etree.Element) {
	for _, c := range childElements(e) {
		reorderChildren(c)
	}
	if ranks, ok := childOrderTables[e.Tag]; ok {
		sortChildrenByRank(e, ranks)
		return
	}
	switch e.Tag {
	case "p":
		promoteFirst(e, "pPr")
	case "r":
		promoteFirst(e, "rPr")
	case "tbl":
		promoteFirst(e, "tblPr")
	case "tr":
		promoteFirst(e, "trPr")
	case "tc":
		promoteFirst(e, "tcPr")
	}
}

func sortChildrenByRank(e *etree.Element, ranks map[string]int) {
	children := childElements(e)
	indexed := make([]struct {
		el    *etree.Element
		rank  int
		order int
	}, len(children))
	for i, c := range children {
		rank, ok := ranks[c.Tag]
		if !ok {
			rank = len(ranks) + 1
		}
		indexed[i] = struct {
			el    *etree.Element
			rank  int
			order int
		}{c, rank, i}
	}
	sort.SliceStable(indexed, func(i, j int) bool {
		return indexed[i].rank < indexed[j].rank
	})
	for _, entry := range indexed {
		e.RemoveChild(entry.el)
	}
	for _, entry := range indexed {
		e.AddChild(entry.el)
	}
}

func promoteFirst(e *etree.Element, tag string) {
	props := firstChild(e, tag)
	if props == nil || props.Index() == 0 {
		return
	}
	e.RemoveChild(props)
	e.InsertChildAt(0, props)
}

// renumberRevisions reassigns every revision id sequentially in document
// order so that no two revisions in the output share an id.
func (d *decorator) renumberRevisions(body *etree.Element) {
	renumber := func(e *etree.Element) bool {
		if revisionIDElements[e.Tag] && e.SelectAttr("w:id") != nil {
			e.RemoveAttr("w:id")
			// id leads the attribute list on revision elements.
			e.Attr = append([]etree.Attr{{Space: "w", Key: "id", Value: strconv.Itoa(d.gen.Next())}}, e.Attr...)
		}
		return true
	}
	renumber(body)
	walkElements(body, renumber)
}

// stripScaffolding removes every scaffolding attribute and stray helper
// element from the subtree.
func stripScaffolding(e *etree.Element) {
	removeAttrsWhere(e, isPtAttr)
	for _, c := range childElements(e) {
		if c.Space == ptPrefix {
			removeElement(c)
			continue
		}
		stripScaffolding(c)
	}
}

// MaxExistingRevisionID scans a tree for the largest w:id on revision
// elements, for seeding the id generator.
func MaxExistingRevisionID(root *etree.Element) int {
	max := 0
	scan := func(e *etree.Element) bool {
		if revisionIDElements[e.Tag] {
			if v, err := strconv.Atoi(e.SelectAttrValue("w:id", "")); err == nil && v > max {
				max = v
			}
		}
		return true
	}
	scan(root)
	walkElements(root, scan)
	return max
}

// revisionTimestamp formats a time the way revision markup expects.
func revisionTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
