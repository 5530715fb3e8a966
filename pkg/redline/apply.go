package redline

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	"github.com/benjaminschreck/go-redline/pkg/redline/ooxml"
)

// ApplyChanges replays a serialized change list onto a base document,
// producing a package carrying the changes as native revision markup.
// Changes are located by paragraph index and old-text match; a change whose
// paragraph or text no longer exists in the base is reported as an error.
func ApplyChanges(base []byte, changes []Change) ([]byte, error) {
	pkg, err := ooxml.Open(base)
	if err != nil {
		return nil, NewPackageError("base", err)
	}
	if pkg.Kind() != ooxml.KindWordprocessing {
		return nil, NewInvalidPackageError("word/document.xml",
			fmt.Sprintf("expected a wordprocessing package, got %s", pkg.Kind()))
	}
	byPart := make(map[string][]Change)
	for _, c := range changes {
		byPart[c.Part] = append(byPart[c.Part], c)
	}
	for _, part := range comparableParts {
		partChanges := byPart[part]
		if len(partChanges) == 0 {
			continue
		}
		if err := applyToPart(pkg, part, partChanges); err != nil {
			return nil, err
		}
	}
	return pkg.Save()
}

func applyToPart(pkg *ooxml.Package, part string, changes []Change) error {
	doc, err := pkg.GetXMLPart(part)
	if err != nil {
		return NewXmlParseError(part, err)
	}
	root := doc.Root()
	if root == nil {
		return NewInvalidPackageError(part, "part has no root element")
	}
	body := contentRoot(root)
	if body == nil {
		return NewInvalidPackageError(part, "part has no content body")
	}
	paragraphs := collectParagraphs(body)
	ap := &applier{paragraphs: paragraphs}
	for _, c := range changes {
		if err := ap.apply(c); err != nil {
			return fmt.Errorf("applying change %d in %s: %w", c.RevisionID, part, err)
		}
	}
	pkg.PutXMLPart(part, doc)
	return nil
}

// collectParagraphs lists every w:p in the same walk order the change
// extractor numbers them, tables and textboxes included.
func collectParagraphs(body *etree.Element) []*etree.Element {
	var out []*etree.Element
	walkElements(body, func(e *etree.Element) bool {
		if e.Tag == "p" {
			out = append(out, e)
		}
		return true
	})
	return out
}

type applier struct {
	paragraphs []*etree.Element
	// lastDel remembers where the previous deletion landed so a paired
	// insertion can take its place in the run sequence.
	lastDel     *etree.Element
	lastDelPara int
}

func (ap *applier) apply(c Change) error {
	if c.ParagraphIndex < 0 || c.ParagraphIndex >= len(ap.paragraphs) {
		return fmt.Errorf("paragraph %d out of range", c.ParagraphIndex)
	}
	p := ap.paragraphs[c.ParagraphIndex]
	switch c.Kind {
	case ChangeTextDeleted:
		return ap.applyDelete(p, c)
	case ChangeTextInserted:
		return ap.applyInsert(p, c)
	case ChangeFormatChanged:
		// carried only as a summary in the change list; nothing to replay
		return nil
	case ChangeTextReplaced:
		return fmt.Errorf("replaced changes are a display form, not applicable")
	}
	return fmt.Errorf("unknown change kind %d", c.Kind)
}

// applyDelete finds the change's old text among the paragraph's runs, splits
// the boundary runs and wraps the covered runs in a stamped w:del.
func (ap *applier) applyDelete(p *etree.Element, c Change) error {
	if c.OldText == "" {
		return ap.applyParagraphMarkDelete(p, c)
	}
	start, end, ok := locateText(p, c.OldText)
	if !ok {
		return fmt.Errorf("text %q not found in paragraph %d", c.OldText, c.ParagraphIndex)
	}
	runs := isolateRuns(p, start, end)
	if len(runs) == 0 {
		return fmt.Errorf("no runs cover %q in paragraph %d", c.OldText, c.ParagraphIndex)
	}
	del := etree.NewElement("w:del")
	stampRevision(del, c)
	p.InsertChildAt(runs[0].Index(), del)
	for _, r := range runs {
		p.RemoveChild(r)
		for _, t := range descendants(r, func(e *etree.Element) bool { return e.Tag == "t" }) {
			t.Tag = "delText"
		}
		del.AddChild(r)
	}
	ap.lastDel = del
	ap.lastDelPara = c.ParagraphIndex
	return nil
}

// applyInsert emits a stamped w:ins run. When the previous change was a
// deletion in the same paragraph the insertion lands right after it;
// otherwise it is appended at the end of the paragraph's content.
func (ap *applier) applyInsert(p *etree.Element, c Change) error {
	if c.NewText == "" {
		return nil
	}
	ins := etree.NewElement("w:ins")
	stampRevision(ins, c)
	run := ins.CreateElement("w:r")
	t := run.CreateElement("w:t")
	t.SetText(c.NewText)
	if needsSpacePreserve(c.NewText) {
		t.CreateAttr("xml:space", "preserve")
	}
	if ap.lastDel != nil && ap.lastDelPara == c.ParagraphIndex && ap.lastDel.Parent() == p {
		p.InsertChildAt(ap.lastDel.Index()+1, ins)
	} else {
		p.AddChild(ins)
	}
	return nil
}

// applyParagraphMarkDelete marks the paragraph mark itself deleted, the form
// a removed paragraph boundary takes in the markup.
func (ap *applier) applyParagraphMarkDelete(p *etree.Element, c Change) error {
	pPr := firstChild(p, "pPr")
	if pPr == nil {
		pPr = etree.NewElement("w:pPr")
		p.InsertChildAt(0, pPr)
	}
	rPr := firstChild(pPr, "rPr")
	if rPr == nil {
		rPr = etree.NewElement("w:rPr")
		pPr.InsertChildAt(0, rPr)
	}
	del := etree.NewElement("w:del")
	stampRevision(del, c)
	rPr.InsertChildAt(0, del)
	return nil
}

func stampRevision(e *etree.Element, c Change) {
	e.CreateAttr("w:id", strconv.Itoa(c.RevisionID))
	e.CreateAttr("w:author", c.Author)
	e.CreateAttr("w:date", c.Date)
}

// locateText searches the concatenated direct-run text of a paragraph for
// needle and returns its rune offsets.
func locateText(p *etree.Element, needle string) (int, int, bool) {
	var all []rune
	for _, r := range childElements(p) {
		if r.Tag != "r" {
			continue
		}
		for _, t := range childElements(r) {
			if t.Tag == "t" {
				all = append(all, []rune(t.Text())...)
			}
		}
	}
	hay := string(all)
	idx := indexRunes(hay, needle)
	if idx < 0 {
		return 0, 0, false
	}
	return idx, idx + len([]rune(needle)), true
}

func indexRunes(hay, needle string) int {
	hr := []rune(hay)
	nr := []rune(needle)
	for i := 0; i+len(nr) <= len(hr); i++ {
		if string(hr[i:i+len(nr)]) == needle {
			return i
		}
	}
	return -1
}

// isolateRuns splits the paragraph's runs so that the rune range [start,end)
// is covered by whole runs, and returns those runs in order.
func isolateRuns(p *etree.Element, start, end int) []*etree.Element {
	var out []*etree.Element
	offset := 0
	for _, r := range childElements(p) {
		if r.Tag != "r" {
			continue
		}
		n := runeLength(r)
		rStart, rEnd := offset, offset+n
		offset = rEnd
		if rEnd <= start || rStart >= end || n == 0 {
			continue
		}
		if rStart < start {
			splitRunAt(p, r, start-rStart)
			return isolateRuns(p, start, end)
		}
		if rEnd > end {
			splitRunAt(p, r, end-rStart)
			out = append(out, r)
			return out
		}
		out = append(out, r)
	}
	return out
}

func runeLength(r *etree.Element) int {
	n := 0
	for _, t := range childElements(r) {
		if t.Tag == "t" {
			n += len([]rune(t.Text()))
		}
	}
	return n
}

// splitRunAt splits a single-text run into two sibling runs at the given
// rune offset and returns the second run.
func splitRunAt(p *etree.Element, r *etree.Element, at int) *etree.Element {
	second := r.Copy()
	consumed := 0
	trimAt := func(e *etree.Element, keepHead bool) {
		for _, t := range childElements(e) {
			if t.Tag != "t" {
				continue
			}
			runes := []rune(t.Text())
			lo := consumed
			hi := consumed + len(runes)
			switch {
			case keepHead && lo >= at:
				removeElement(t)
			case keepHead && hi > at:
				t.SetText(string(runes[:at-lo]))
			case !keepHead && hi <= at:
				removeElement(t)
			case !keepHead && lo < at:
				t.SetText(string(runes[at-lo:]))
			}
			consumed = hi
		}
	}
	trimAt(r, true)
	consumed = 0
	trimAt(second, false)
	p.InsertChildAt(r.Index()+1, second)
	return second
}

// RevertChanges removes the listed revisions from a redline result,
// restoring the older document's content. Deletions are rejected back into
// live text, insertions dropped, and format changes restored from their
// recorded before-properties.
func RevertChanges(result []byte, changes []Change) ([]byte, error) {
	pkg, err := ooxml.Open(result)
	if err != nil {
		return nil, NewPackageError("result", err)
	}
	byPart := make(map[string][]string)
	for _, c := range changes {
		byPart[c.Part] = append(byPart[c.Part], strconv.Itoa(c.RevisionID))
	}
	for _, part := range comparableParts {
		ids := byPart[part]
		if len(ids) == 0 || !pkg.HasPart(part) {
			continue
		}
		doc, err := pkg.GetXMLPart(part)
		if err != nil {
			return nil, NewXmlParseError(part, err)
		}
		root := doc.Root()
		if root == nil {
			return nil, NewInvalidPackageError(part, "part has no root element")
		}
		revertFormatChanges(root, ids)
		AcceptRevisions(root, RejectByIds(ids...))
		pkg.PutXMLPart(part, doc)
	}
	return pkg.Save()
}

// revertFormatChanges restores rPr contents from rPrChange history entries
// whose id is in the set, then drops the history element. AcceptRevisions
// handles the ins/del wrappers; property history is this pass's job.
func revertFormatChanges(root *etree.Element, ids []string) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, change := range descendants(root, func(e *etree.Element) bool {
		return e.Tag == "rPrChange" || e.Tag == "pPrChange"
	}) {
		if !set[attrValue(change, "id")] {
			continue
		}
		holder := change.Parent()
		if holder == nil {
			continue
		}
		before := firstChild(change, "rPr")
		if before == nil {
			before = firstChild(change, "pPr")
		}
		removeElement(change)
		for _, c := range childElements(holder) {
			holder.RemoveChild(c)
		}
		if before != nil {
			for _, c := range childElements(before) {
				before.RemoveChild(c)
				holder.AddChild(c)
			}
		}
	}
}
