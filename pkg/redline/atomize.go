package redline

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// The atomizer flattens a preprocessed content tree into an ordered list
// of atoms, each carrying its full ancestor chain.

// ImageResolver resolves a relationship id on the part being atomized to
// the referenced image's binary content.
type ImageResolver interface {
	ResolveImage(rID string) ([]byte, error)
}

// Elements dropped by the atomizer without producing content.
var atomizeDropElements = map[string]bool{
	"bookmarkStart":         true,
	"bookmarkEnd":           true,
	"permStart":             true,
	"permEnd":               true,
	"proofErr":              true,
	"lastRenderedPageBreak": true,
	"footnoteRef":           true,
	"endnoteRef":            true,
	"separator":             true,
	"continuationSeparator": true,
	"sectPr":                true,
	"instrText":             true,
	"delInstrText":          true,
}

// Property children skipped when descending into a container.
var atomizeSkipChildren = map[string]map[string]bool{
	"tbl": {"tblPr": true, "tblGrid": true, "tblPrEx": true},
	"tr":  {"trPr": true, "tblPrEx": true},
	"tc":  {"tcPr": true},
	"p":   {"pPr": true},
	"r":   {"rPr": true},
}

// Atomize walks the content of a body-level element and returns its atoms
// in document order. part names the owning package part; resolver may be
// nil, in which case drawing identity degrades to structure hashing.
func Atomize(body *etree.Element, part string, settings Settings, resolver ImageResolver) []*Atom {
	az := &atomizer{settings: settings, resolver: resolver, part: part}
	for _, c := range body.ChildElements() {
		az.element(c, nil, nil)
	}
	return az.atoms
}

type atomizer struct {
	settings Settings
	resolver ImageResolver
	part     string
	atoms    []*Atom
}

func (az *atomizer) emit(a *Atom) {
	a.Part = az.part
	a.Status = StatusNormal
	az.atoms = append(az.atoms, a)
}

// ancestorOf snapshots an element as an ancestor-chain entry.
func ancestorOf(e *etree.Element) *Ancestor {
	attrs := make([]etree.Attr, len(e.Attr))
	copy(attrs, e.Attr)
	return &Ancestor{
		Name:           e.Tag,
		Space:          e.Space,
		Unid:           unid(e),
		Attrs:          attrs,
		CorrelatedHash: correlatedHash(e),
	}
}

func (az *atomizer) element(e *etree.Element, chain []*Ancestor, rPr *etree.Element) {
	if atomizeDropElements[e.Tag] {
		return
	}
	switch e.Tag {
	case "p":
		pChain := appendAncestor(chain, e)
		for _, c := range e.ChildElements() {
			if c.Tag == "pPr" {
				continue
			}
			az.element(c, pChain, rPr)
		}
		mark := &Atom{
			Kind:      ContentKind{Tag: KindParagraphMark},
			Hash:      identityHash("pPr", ""),
			Ancestors: pChain,
		}
		if pPr := firstChild(e, "pPr"); pPr != nil {
			mark.paraProps = pPr.Copy()
			if markRPr := firstChild(pPr, "rPr"); markRPr != nil {
				mark.runProps = markRPr.Copy()
			}
		}
		az.emit(mark)

	case "r":
		props := firstChild(e, "rPr")
		if props != nil {
			props = props.Copy()
		}
		rChain := appendAncestor(chain, e)
		for _, c := range e.ChildElements() {
			if c.Tag == "rPr" {
				continue
			}
			az.element(c, rChain, props)
		}

	case "t", "delText":
		for _, ch := range elementText(e) {
			az.emit(&Atom{
				Kind:      ContentKind{Tag: KindText, Char: ch},
				Hash:      identityHash("t", az.normalizeChar(ch)),
				Ancestors: chain,
				runProps:  rPr,
			})
		}

	case "br", "cr":
		az.emit(&Atom{
			Kind:      ContentKind{Tag: KindBreak},
			Hash:      identityHash("br", attrValue(e, "type")),
			Ancestors: chain,
			runProps:  rPr,
			content:   e.Copy(),
		})

	case "tab", "ptab":
		az.emit(&Atom{
			Kind:      ContentKind{Tag: KindTab},
			Hash:      identityHash("tab", ""),
			Ancestors: chain,
			runProps:  rPr,
			content:   e.Copy(),
		})

	case "drawing", "pict":
		if hasTextboxContent(e) {
			az.descend(e, chain, rPr)
			return
		}
		kind := KindDrawing
		name := "drawing"
		if e.Tag == "pict" {
			kind = KindPicture
			name = "pict"
		}
		hash := az.drawingContentHash(e)
		az.emit(&Atom{
			Kind:      ContentKind{Tag: kind, Hash: hash},
			Hash:      identityHash(name, hash),
			Ancestors: chain,
			runProps:  rPr,
			content:   e.Copy(),
		})

	case "footnoteReference", "endnoteReference":
		kind := KindFootnoteRef
		if e.Tag == "endnoteReference" {
			kind = KindEndnoteRef
		}
		id := attrValue(e, "id")
		az.emit(&Atom{
			Kind:      ContentKind{Tag: kind, RefID: id},
			Hash:      identityHash(e.Tag, id),
			Ancestors: chain,
			runProps:  rPr,
			content:   e.Copy(),
		})

	case "fldChar":
		fieldKind := FieldBegin
		switch attrValue(e, "fldCharType") {
		case "separate":
			fieldKind = FieldSeparate
		case "end":
			fieldKind = FieldEnd
		}
		az.emit(&Atom{
			Kind:      ContentKind{Tag: KindField, Field: fieldKind},
			Hash:      identityHash("fldChar", attrValue(e, "fldCharType")),
			Ancestors: chain,
			runProps:  rPr,
			content:   e.Copy(),
		})

	case "fldSimple":
		instr := attrValue(e, "instr")
		az.emit(&Atom{
			Kind:      ContentKind{Tag: KindField, Field: FieldSimple, Instr: instr},
			Hash:      identityHash("fldSimple", instr),
			Ancestors: chain,
			content:   e.Copy(),
		})

	case "sym":
		font := attrValue(e, "font")
		char := attrValue(e, "char")
		az.emit(&Atom{
			Kind:      ContentKind{Tag: KindSymbol, Font: font, Sym: char},
			Hash:      identityHash("sym", font+"|"+char),
			Ancestors: chain,
			runProps:  rPr,
			content:   e.Copy(),
		})

	case "object":
		hash := scrubbedSubtreeHash(e)
		az.emit(&Atom{
			Kind:      ContentKind{Tag: KindObject, Hash: hash},
			Hash:      identityHash("object", hash),
			Ancestors: chain,
			runProps:  rPr,
			content:   e.Copy(),
		})

	case "oMath", "oMathPara":
		hash := scrubbedSubtreeHash(e)
		az.emit(&Atom{
			Kind:      ContentKind{Tag: KindMath, Hash: hash},
			Hash:      identityHash(e.Tag, hash),
			Ancestors: chain,
			runProps:  rPr,
			content:   e.Copy(),
		})

	case "tbl", "tr", "tc", "txbxContent", "sdt", "sdtContent", "hyperlink", "smartTag",
		"footnote", "endnote", "group", "shape", "shapetype", "textbox", "rect":
		az.descend(e, chain, rPr)

	default:
		if len(e.ChildElements()) > 0 {
			az.descend(e, chain, rPr)
			return
		}
		if strings.TrimSpace(subtreeText(e)) == "" && len(e.Attr) == 0 {
			return
		}
		az.emit(&Atom{
			Kind:      ContentKind{Tag: KindUnknown, Name: e.Tag},
			Hash:      identityHash(e.Tag, scrubbedSubtreeHash(e)),
			Ancestors: chain,
			runProps:  rPr,
			content:   e.Copy(),
		})
	}
}

// descend recurses into content-bearing children, pushing the element onto
// the ancestor chain and honoring its skip list.
func (az *atomizer) descend(e *etree.Element, chain []*Ancestor, rPr *etree.Element) {
	skip := atomizeSkipChildren[e.Tag]
	next := appendAncestor(chain, e)
	for _, c := range e.ChildElements() {
		if skip != nil && skip[c.Tag] {
			continue
		}
		az.element(c, next, rPr)
	}
}

// appendAncestor extends a chain without sharing the backing array with
// sibling branches.
func appendAncestor(chain []*Ancestor, e *etree.Element) []*Ancestor {
	next := make([]*Ancestor, len(chain)+1)
	copy(next, chain)
	next[len(chain)] = ancestorOf(e)
	return next
}

func hasTextboxContent(e *etree.Element) bool {
	return len(descendants(e, func(d *etree.Element) bool { return d.Tag == "txbxContent" })) > 0
}

func (az *atomizer) normalizeChar(ch rune) string {
	s := string(ch)
	if az.settings.CaseInsensitive {
		s = strings.ToUpper(s)
	}
	if az.settings.ConflateSpaces && s == " " {
		s = " "
	}
	return s
}

// drawingContentHash computes the canonical identity of a drawing: the
// SHA1 of the referenced image's binary content, resolved through the
// part's relationships. When the relationship cannot be resolved the
// identity falls back to hashing the XML subtree with relationship,
// scaffolding and wp14 tracking attributes excluded, so the drawing still
// correlates.
func (az *atomizer) drawingContentHash(e *etree.Element) string {
	rID := embeddedImageRelID(e)
	if rID != "" && az.resolver != nil {
		if data, err := az.resolver.ResolveImage(rID); err == nil {
			return fmt.Sprintf("%x", sha1.Sum(data))
		}
		GetLogger().Warn("image relationship %s could not be resolved; falling back to structure hash", rID)
	}
	return scrubbedSubtreeHash(e)
}

// embeddedImageRelID finds the first a:blip r:embed, or (VML) the first
// v:imagedata r:id, in the drawing subtree.
func embeddedImageRelID(e *etree.Element) string {
	for _, blip := range descendants(e, func(d *etree.Element) bool { return d.Tag == "blip" }) {
		if id := attrValue(blip, "embed"); id != "" {
			return id
		}
	}
	for _, img := range descendants(e, func(d *etree.Element) bool { return d.Tag == "imagedata" }) {
		if id := attrValue(img, "id"); id != "" {
			return id
		}
	}
	return ""
}

// scrubbedSubtreeHash hashes an XML subtree with relationship attributes,
// scaffolding attributes and wp14 tracking ids excluded.
func scrubbedSubtreeHash(e *etree.Element) string {
	var sb strings.Builder
	renderScrubbed(e, &sb)
	return fmt.Sprintf("%x", sha1.Sum([]byte(sb.String())))
}

func renderScrubbed(e *etree.Element, sb *strings.Builder) {
	sb.WriteString("<" + e.Tag)
	attrs := make([]etree.Attr, 0, len(e.Attr))
	for _, a := range e.Attr {
		if isPtAttr(a) || isRsidAttr(a) {
			continue
		}
		if a.Space == "r" || a.Space == "wp14" {
			continue
		}
		if a.Key == "anchorId" || a.Key == "editId" {
			continue
		}
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].Space != attrs[j].Space {
			return attrs[i].Space < attrs[j].Space
		}
		return attrs[i].Key < attrs[j].Key
	})
	for _, a := range attrs {
		if a.Space != "" {
			fmt.Fprintf(sb, " %s:%s=%q", a.Space, a.Key, a.Value)
		} else {
			fmt.Fprintf(sb, " %s=%q", a.Key, a.Value)
		}
	}
	sb.WriteString(">")
	for _, tok := range e.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			sb.WriteString(t.Data)
		case *etree.Element:
			renderScrubbed(t, sb)
		}
	}
	sb.WriteString("</" + e.Tag + ">")
}
