package redline

import (
	"strings"
	"unicode"

	"github.com/beevik/etree"
)

// The coalescer rebuilds an XML tree from the resolved atom stream. It
// recurses level by level through the ancestor chains, reconstructing each
// container from its snapshot, fusing adjacent same-status atoms into
// single elements, and attaching status markers wherever a piece differs
// from Equal. The markers are scaffolding; the decorator turns them into
// native revision elements.

// ptBeforeRPr is the scaffolding element the coalescer leaves inside a
// format-changed run; the decorator rewrites it into w:rPrChange.
const ptBeforeRPr = ptPrefix + ":rPrBefore"

// Containers that may carry a status marker attribute.
var statusMarkerContainers = map[string]bool{
	"p":   true,
	"r":   true,
	"tbl": true,
	"tr":  true,
	"tc":  true,
}

// CoalesceInto fills a body-level element with the output tree rebuilt
// from the resolved atom stream.
func CoalesceInto(body *etree.Element, atoms []*Atom) {
	cz := &coalescer{}
	cz.fill(body, atoms, 0, false)
}

type coalescer struct{}

type segmentKind int

const (
	segLeaf segmentKind = iota
	segRun
	segContainer
)

type segmentKey struct {
	kind      segmentKind
	unid      string
	status    Status
	fmtSig    string
	beforeSig string
}

func (cz *coalescer) keyFor(a *Atom, depth int) segmentKey {
	switch {
	case len(a.Ancestors) <= depth:
		return segmentKey{kind: segLeaf, status: a.Status}
	case len(a.Ancestors) == depth+1 && a.Ancestors[depth].Name == "r":
		beforeSig := ""
		if a.Before != nil {
			beforeSig = a.Before.FormatSig
		}
		return segmentKey{
			kind:      segRun,
			unid:      a.Ancestors[depth].Unid,
			status:    a.Status,
			fmtSig:    a.FormatSig,
			beforeSig: beforeSig,
		}
	default:
		return segmentKey{kind: segContainer, unid: a.Ancestors[depth].Unid}
	}
}

// fill appends the reconstruction of atoms to parent. insideTextbox forces
// Equal emission: the textbox wrapper must not be marked as changed even
// when its interior is.
func (cz *coalescer) fill(parent *etree.Element, atoms []*Atom, depth int, insideTextbox bool) {
	i := 0
	for i < len(atoms) {
		key := cz.keyFor(atoms[i], depth)
		j := i + 1
		for j < len(atoms) && cz.keyFor(atoms[j], depth) == key {
			j++
		}
		seg := atoms[i:j]
		switch key.kind {
		case segLeaf:
			for _, a := range seg {
				cz.emitLeaf(parent, a, insideTextbox)
			}
		case segRun:
			cz.emitRun(parent, seg, depth, insideTextbox)
		case segContainer:
			cz.emitContainer(parent, seg, depth, insideTextbox)
		}
		i = j
	}
}

func (cz *coalescer) emitContainer(parent *etree.Element, seg []*Atom, depth int, insideTextbox bool) {
	anc := seg[0].Ancestors[depth]
	el := newElementFromAncestor(anc)
	childTextbox := insideTextbox || anc.Name == "drawing" || anc.Name == "pict"
	cz.fill(el, seg, depth+1, childTextbox)
	if !insideTextbox && statusMarkerContainers[anc.Name] {
		if status, uniform := uniformStatus(seg); uniform && status != StatusEqual && status != StatusFormatChanged {
			el.CreateAttr(attrStatus, status.String())
		}
	}
	parent.AddChild(el)
}

// emitLeaf places content that belongs directly to the current container:
// a paragraph mark contributes the paragraph's pPr, everything else its
// snapshot element.
func (cz *coalescer) emitLeaf(parent *etree.Element, a *Atom, insideTextbox bool) {
	if a.Kind.Tag == KindParagraphMark {
		pPr := a.ParagraphProperties()
		if pPr != nil {
			pPr = pPr.Copy()
		}
		status := a.Status
		if insideTextbox {
			status = StatusEqual
		}
		marked := status != StatusEqual && status != StatusFormatChanged
		if existing := firstChild(parent, "pPr"); existing != nil {
			// a merged paragraph receives a mark from each source
			// paragraph; the element keeps one pPr, with the surviving
			// properties and any deletion marker combined
			if marked {
				existing.CreateAttr(attrStatus, status.String())
				return
			}
			if pPr != nil {
				if carried := existing.SelectAttrValue(attrStatus, ""); carried != "" {
					pPr.CreateAttr(attrStatus, carried)
				}
				parent.RemoveChild(existing)
				parent.InsertChildAt(0, pPr)
			}
			return
		}
		if pPr == nil && marked {
			pPr = etree.NewElement("w:pPr")
		}
		if pPr != nil {
			if marked {
				pPr.CreateAttr(attrStatus, status.String())
			}
			parent.InsertChildAt(0, pPr)
		}
		return
	}
	if a.ContentElement() == nil {
		return
	}
	el := a.ContentElement().Copy()
	if !insideTextbox && a.Status != StatusEqual && a.Status != StatusFormatChanged {
		el.CreateAttr(attrStatus, a.Status.String())
	}
	parent.AddChild(el)
}

// emitRun reconstructs one run element from an adjacency segment. Text
// atoms accumulate into a single text element, flushed whenever a
// non-text atom interrupts.
func (cz *coalescer) emitRun(parent *etree.Element, seg []*Atom, depth int, insideTextbox bool) {
	anc := seg[0].Ancestors[depth]
	r := newElementFromAncestor(anc)
	status := seg[0].Status
	if insideTextbox {
		status = StatusEqual
	}

	if rPr := seg[0].RunProperties(); rPr != nil {
		r.AddChild(rPr.Copy())
	}
	if status == StatusFormatChanged && seg[0].Before != nil {
		if beforeRPr := seg[0].Before.RunProperties(); beforeRPr != nil {
			holder := etree.NewElement(ptBeforeRPr)
			holder.AddChild(beforeRPr.Copy())
			r.AddChild(holder)
		}
	}

	var text strings.Builder
	flushText := func() {
		if text.Len() == 0 {
			return
		}
		name := "w:t"
		if status == StatusDeleted {
			name = "w:delText"
		}
		t := r.CreateElement(name)
		s := text.String()
		t.SetText(s)
		if needsSpacePreserve(s) {
			t.CreateAttr("xml:space", xmlSpacePreserve)
		}
		text.Reset()
	}

	for _, a := range seg {
		if a.IsText() {
			text.WriteRune(a.Kind.Char)
			continue
		}
		flushText()
		if a.ContentElement() != nil {
			r.AddChild(a.ContentElement().Copy())
		}
	}
	flushText()

	if status != StatusEqual {
		r.CreateAttr(attrStatus, status.String())
	}
	parent.AddChild(r)
}

// needsSpacePreserve reports whether serialized text needs an explicit
// whitespace-preservation attribute.
func needsSpacePreserve(s string) bool {
	if s == "" {
		return false
	}
	runes := []rune(s)
	return unicode.IsSpace(runes[0]) || unicode.IsSpace(runes[len(runes)-1])
}

// uniformStatus reports the shared status of a segment's atoms, if any.
func uniformStatus(atoms []*Atom) (Status, bool) {
	status := atoms[0].Status
	for _, a := range atoms[1:] {
		if a.Status != status {
			return StatusNil, false
		}
	}
	return status, true
}

// newElementFromAncestor rebuilds a container element from its snapshot.
func newElementFromAncestor(anc *Ancestor) *etree.Element {
	name := anc.Name
	if anc.Space != "" {
		name = anc.Space + ":" + anc.Name
	}
	el := etree.NewElement(name)
	for _, a := range anc.Attrs {
		key := a.Key
		if a.Space != "" {
			key = a.Space + ":" + a.Key
		}
		el.CreateAttr(key, a.Value)
	}
	return el
}
